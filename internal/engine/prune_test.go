package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
)

func TestPruneCollapsesPrefix(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, ir.SetName("doc"))
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 4)...)

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 3)
	require.NoError(t, err)

	ops := globalOps(pruned)
	require.Len(t, ops, 3)

	checkpoint := ops[0]
	assert.Equal(t, ir.ActionLoadState, checkpoint.Type)
	assert.Equal(t, 0, checkpoint.Index)
	assert.Equal(t, ir.LoadState("doc", ir.Object{"count": ir.Int(2)}, 3, ir.ScopeGlobal).Input, checkpoint.Input)
	assert.Equal(t, ts(4), checkpoint.Timestamp, "takes the timestamp of the first kept operation")
	assert.Equal(t, ir.MustHashState(ir.SHA1Base64{}, ir.Object{"count": ir.Int(2)}), checkpoint.Hash)
	assert.NotEmpty(t, checkpoint.ID)

	assert.Equal(t, []int{0, 1, 2}, []int{ops[0].Index, ops[1].Index, ops[2].Index})
	assert.Equal(t, globalOps(doc)[4].Hash, ops[2].Hash)

	assert.Equal(t, "doc", pruned.Name)
	assert.Equal(t, doc.State, pruned.State)
	assert.Equal(t, 3, pruned.Revision[ir.ScopeGlobal])
	assert.Equal(t, doc.Created, pruned.Created)
	assert.Equal(t, doc.LastModified, pruned.LastModified)
}

func TestPruneMiddleRange(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 5)...)

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 1, 3)
	require.NoError(t, err)

	ops := globalOps(pruned)
	require.Len(t, ops, 4)
	assert.Equal(t, doctype.ActionIncrement, ops[0].Type)
	assert.Equal(t, ir.ActionLoadState, ops[1].Type)
	assert.Equal(t, 1, ops[1].Index)
	assert.Equal(t, ts(1), ops[1].Timestamp, "takes the timestamp of the last operation before the range")
	for i, op := range ops {
		assert.Equal(t, i, op.Index)
	}
	assert.Equal(t, ir.Int(5), count(pruned))
}

func TestPruneWholeLog(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 3)...)

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 3)
	require.NoError(t, err)

	ops := globalOps(pruned)
	require.Len(t, ops, 1)
	assert.Equal(t, ir.ActionLoadState, ops[0].Type)
	assert.Equal(t, ts(4), ops[0].Timestamp, "no neighbours: the clock supplies the timestamp")
	assert.Equal(t, ir.Int(3), count(pruned))
	assert.Equal(t, 1, pruned.Revision[ir.ScopeGlobal])
}

func TestPruneEquivalentToReplay(t *testing.T) {
	e, doc := newCounter(t)
	doc = buildHistory(t, e, doc)

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, doc.State, pruned.State)
	assert.Equal(t, doc.Name, pruned.Name)
	assert.Equal(t, doc.Operations[ir.ScopeLocal], pruned.Operations[ir.ScopeLocal], "other scopes are untouched")

	replayed, err := e.Replay(pruned.InitialState, pruned.Operations, engine.ReplayOptions{VerifyHashes: true})
	require.NoError(t, err)
	assert.Equal(t, pruned.State, replayed.State)
}

func TestPruneKeepsSkipsOutsideRange(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 5)...)
	doc = dispatch(t, e, doc, ir.Undo(1, ir.ScopeGlobal))
	require.Equal(t, ir.Int(4), count(doc))

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 3)
	require.NoError(t, err)

	ops := globalOps(pruned)
	require.Len(t, ops, 4)
	noop := ops[3]
	assert.Equal(t, ir.ActionNoop, noop.Type)
	assert.Equal(t, 3, noop.Index)
	assert.Equal(t, 1, noop.Skip)
	assert.Equal(t, ir.Int(4), count(pruned))
}

func TestPruneInvalidRange(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 5)...)
	withUndo := dispatch(t, e, doc, ir.Undo(1, ir.ScopeGlobal))

	tests := []struct {
		name       string
		doc        *ir.Document
		start, end int
	}{
		{"negative start", doc, -1, 2},
		{"end past log", doc, 0, 6},
		{"empty range", doc, 3, 3},
		{"reversed range", doc, 4, 2},
		{"kept NOOP skips into range", withUndo, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Prune(tt.doc, ir.ScopeGlobal, tt.start, tt.end)
			assert.True(t, engine.IsCode(err, engine.ErrCodeInvalidPruneRange), "%v", err)
		})
	}
}

func TestPruneClearsScopeClipboard(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 4)...)
	doc = dispatch(t, e, doc, doctype.SetLocalName("x"), ir.Undo(1, ir.ScopeLocal))
	doc = dispatch(t, e, doc, ir.Undo(1, ir.ScopeGlobal))
	require.Len(t, doc.Clipboard, 2)

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 2)
	require.NoError(t, err)

	require.Len(t, pruned.Clipboard, 1)
	assert.Equal(t, ir.ScopeLocal, pruned.Clipboard[0].Scope)
}

func TestPruneKeepsMetaAndAttachments(t *testing.T) {
	e, doc := newCounter(t)
	doc.Meta = ir.Object{"owner": ir.String("ops")}
	a := doctype.Increment()
	a.Attachments = []ir.AttachmentInput{{Attachment: ir.Attachment{Data: "eA==", MimeType: "text/plain"}, Hash: "h"}}
	doc = dispatch(t, e, doc, a, doctype.Increment())

	pruned, err := e.Prune(doc, ir.ScopeGlobal, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, doc.Meta, pruned.Meta)
	assert.Equal(t, doc.Attachments, pruned.Attachments)
}

func TestDispatchPruneAction(t *testing.T) {
	e, doc := newCounter(t)
	doc = dispatch(t, e, doc, repeat(doctype.Increment(), 5)...)
	snapshot := doc.Clone()

	pruned, err := e.Dispatch(doc, ir.Prune(0, 3, ir.ScopeGlobal))
	require.NoError(t, err)
	assert.Len(t, globalOps(pruned), 3)
	assert.Equal(t, ir.Int(5), count(pruned))
	assert.Equal(t, snapshot, doc)

	t.Run("end defaults to the log length", func(t *testing.T) {
		action := ir.NewAction(ir.ActionPrune, ir.Object{"start": ir.Int(2)}, ir.ScopeGlobal)
		pruned, err := e.Dispatch(doc, action)
		require.NoError(t, err)
		assert.Len(t, globalOps(pruned), 3)
		assert.Equal(t, ir.Int(5), count(pruned))
	})
}
