package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
)

func countOperations(t *testing.T, s *Store, docID string, scope ir.Scope) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM operations WHERE doc_id = ? AND scope = ?",
		docID, string(scope),
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func withAttachment(a ir.Action, hash, data string) ir.Action {
	a.Attachments = []ir.AttachmentInput{{
		Attachment: ir.Attachment{Data: data, MimeType: "text/plain", FileName: "note.txt"},
		Hash:       hash,
	}}
	return a
}

func TestSaveDocument_EmptyID(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)

	err := s.SaveDocument(context.Background(), "", createTestDocument(t, e))
	assert.Error(t, err)
}

func TestSaveDocument_WritesAllScopes(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e,
		doctype.Increment(), doctype.Increment(),
		doctype.SetLocalName("x"),
	)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	assert.Equal(t, 2, countOperations(t, s, "doc-1", ir.ScopeGlobal))
	assert.Equal(t, 1, countOperations(t, s, "doc-1", ir.ScopeLocal))

	sum, err := s.ReadSummary(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[ir.Scope]int{ir.ScopeGlobal: 2, ir.ScopeLocal: 1}, sum.Revision)
	assert.Equal(t, doctype.CounterType, sum.DocumentType)
	assert.Equal(t, "test", sum.Name)
}

func TestSaveDocument_AppendsOnly(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e, doctype.Increment(), doctype.Increment())
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	// Mark the first row; a rewrite would lose the marker.
	_, err := s.db.Exec("UPDATE operations SET error = 'marker' WHERE doc_id = 'doc-1' AND position = 0")
	require.NoError(t, err)

	doc, err = e.Dispatch(doc, doctype.Increment())
	require.NoError(t, err)
	doc, err = e.Dispatch(doc, ir.Undo(1, ir.ScopeGlobal))
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	assert.Equal(t, 4, countOperations(t, s, "doc-1", ir.ScopeGlobal))
	var marker string
	require.NoError(t, s.db.QueryRow(
		"SELECT error FROM operations WHERE doc_id = 'doc-1' AND scope = 'global' AND position = 0",
	).Scan(&marker))
	assert.Equal(t, "marker", marker)
}

func TestSaveDocument_IdempotentResave(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e, doctype.Increment(), doctype.Increment())
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	assert.Equal(t, 2, countOperations(t, s, "doc-1", ir.ScopeGlobal))
}

func TestSaveDocument_RewritesPrunedScope(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e,
		doctype.Increment(), doctype.Increment(), doctype.Increment(), doctype.Increment(),
		doctype.SetLocalName("x"),
	)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 3)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", pruned))

	ops, err := s.ReadOperations(ctx, "doc-1", ir.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, ir.ActionLoadState, ops[0].Type)
	assert.Equal(t, 1, ops[1].Index)
	assert.Equal(t, 1, countOperations(t, s, "doc-1", ir.ScopeLocal), "other scopes untouched")
}

func TestSaveDocument_RewritesSingleOperationPrune(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e,
		doctype.Increment(), doctype.Increment(), doctype.Increment(),
		doctype.Increment(), doctype.Increment(),
	)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	// Collapsing one operation keeps the length, indices and tail rows.
	pruned, err := e.Prune(doc, ir.ScopeGlobal, 1, 2)
	require.NoError(t, err)
	require.Len(t, pruned.Operations[ir.ScopeGlobal], 5)
	require.NoError(t, s.SaveDocument(ctx, "doc-1", pruned))

	ops, err := s.ReadOperations(ctx, "doc-1", ir.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	for i, want := range pruned.Operations[ir.ScopeGlobal] {
		assert.Equal(t, want.ID, ops[i].ID, "position %d", i)
		assert.Equal(t, want.Type, ops[i].Type, "position %d", i)
		assert.Equal(t, want.Hash, ops[i].Hash, "position %d", i)
	}
	assert.Equal(t, ir.ActionLoadState, ops[1].Type)

	loaded, err := s.LoadDocument(ctx, "doc-1", e, engine.ReplayOptions{VerifyHashes: true})
	require.NoError(t, err)
	assert.Equal(t, pruned.State, loaded.State)
}

func TestSaveDocument_AttachmentsKeepFirstContent(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	first := createTestDocument(t, e, withAttachment(doctype.Increment(), "h1", "Zmlyc3Q="))
	second := createTestDocument(t, e, withAttachment(doctype.Increment(), "h1", "c2Vjb25k"))
	require.NoError(t, s.SaveDocument(ctx, "doc-1", first))
	require.NoError(t, s.SaveDocument(ctx, "doc-2", second))

	a, err := s.ReadAttachment(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Zmlyc3Q=", a.Data)
	assert.Equal(t, "note.txt", a.FileName)
}

func TestSaveDocument_FailedOperationAttachment(t *testing.T) {
	s := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	doc := createTestDocument(t, e, withAttachment(doctype.Fail("no"), "h-fail", "eA=="))
	require.Empty(t, doc.Attachments, "failed operations do not merge attachments")
	require.NoError(t, s.SaveDocument(ctx, "doc-1", doc))

	ops, err := s.ReadOperations(ctx, "doc-1", ir.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Len(t, ops[0].Attachments, 1)
	assert.Equal(t, "eA==", ops[0].Attachments[0].Data)

	loaded, err := s.LoadDocument(ctx, "doc-1", e, engine.ReplayOptions{})
	require.NoError(t, err)
	assert.Empty(t, loaded.Attachments)
}
