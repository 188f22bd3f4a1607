package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// DocumentSummary is the header of a stored document.
type DocumentSummary struct {
	ID           string
	DocumentType string
	Name         string
	Created      string
	LastModified string
	Revision     map[ir.Scope]int
}

// Replayer rebuilds documents from logs.
// Implemented by *engine.Engine.
type Replayer interface {
	Replay(initial ir.InitialState, operations map[ir.Scope][]ir.Operation, opts engine.ReplayOptions) (*ir.Document, error)
	ApplyOperation(doc *ir.Document, op ir.Operation, opts ...engine.DispatchOption) (*ir.Document, error)
}

// ReadSummary returns the stored header of a document.
// Returns ErrNotFound if no document has the id.
func (s *Store) ReadSummary(ctx context.Context, id string) (DocumentSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_type, name, created, last_modified
		FROM documents
		WHERE id = ?
	`, id)

	var sum DocumentSummary
	if err := row.Scan(&sum.ID, &sum.DocumentType, &sum.Name, &sum.Created, &sum.LastModified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentSummary{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return DocumentSummary{}, fmt.Errorf("read document %s: %w", id, err)
	}

	rev, err := s.readRevisions(ctx, id)
	if err != nil {
		return DocumentSummary{}, err
	}
	sum.Revision = rev
	return sum, nil
}

// ListDocuments returns every stored document ordered by id.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_type, name, created, last_modified
		FROM documents
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentSummary{}
	for rows.Next() {
		var sum DocumentSummary
		if err := rows.Scan(&sum.ID, &sum.DocumentType, &sum.Name, &sum.Created, &sum.LastModified); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	// Revisions are read after the cursor is closed: the pool holds a
	// single connection.
	rows.Close()
	for i := range docs {
		rev, err := s.readRevisions(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Revision = rev
	}
	return docs, nil
}

func (s *Store) readRevisions(ctx context.Context, id string) (map[ir.Scope]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, revision FROM revisions
		WHERE doc_id = ?
		ORDER BY scope COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	rev := make(map[ir.Scope]int)
	for rows.Next() {
		var scope string
		var n int
		if err := rows.Scan(&scope, &n); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev[ir.Scope(scope)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return rev, nil
}

// ReadOperations returns the durable log of one scope in log order, with
// attachment content resolved.
// Returns an empty slice (not nil) if the scope has no operations.
func (s *Store) ReadOperations(ctx context.Context, docID string, scope ir.Scope) ([]ir.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op_index, skip, type, input, timestamp, hash, error, resulting_state, attachments
		FROM operations
		WHERE doc_id = ? AND scope = ?
		ORDER BY position ASC
	`, docID, string(scope))
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	ops := []ir.Operation{}
	var refs [][]string
	for rows.Next() {
		op, hashes, err := scanOperation(rows, scope)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		refs = append(refs, hashes)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	rows.Close()

	for i, hashes := range refs {
		for _, hash := range hashes {
			a, err := s.ReadAttachment(ctx, hash)
			if err != nil {
				return nil, fmt.Errorf("operation %s#%d: %w", scope, ops[i].Index, err)
			}
			ops[i].Attachments = append(ops[i].Attachments, ir.AttachmentInput{Attachment: a, Hash: hash})
		}
	}
	return ops, nil
}

func scanOperation(rows *sql.Rows, scope ir.Scope) (ir.Operation, []string, error) {
	var op ir.Operation
	var inputJSON, refsJSON string
	var resultJSON sql.NullString

	if err := rows.Scan(
		&op.ID, &op.Index, &op.Skip, &op.Type, &inputJSON,
		&op.Timestamp, &op.Hash, &op.Error, &resultJSON, &refsJSON,
	); err != nil {
		return ir.Operation{}, nil, fmt.Errorf("scan operation: %w", err)
	}
	op.Scope = scope

	input, err := unmarshalInput(inputJSON)
	if err != nil {
		return ir.Operation{}, nil, err
	}
	op.Input = input

	state, err := unmarshalResultingState(resultJSON)
	if err != nil {
		return ir.Operation{}, nil, err
	}
	op.ResultingState = state

	hashes, err := unmarshalAttachmentRefs(refsJSON)
	if err != nil {
		return ir.Operation{}, nil, err
	}
	return op, hashes, nil
}

// ReadAttachment returns attachment content by hash.
// Returns ErrNotFound if the hash is unknown.
func (s *Store) ReadAttachment(ctx context.Context, hash string) (ir.Attachment, error) {
	var a ir.Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT data, mime_type, extension, file_name
		FROM attachments
		WHERE hash = ?
	`, hash).Scan(&a.Data, &a.MimeType, &a.Extension, &a.FileName)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Attachment{}, fmt.Errorf("attachment %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return ir.Attachment{}, fmt.Errorf("read attachment %s: %w", hash, err)
	}
	return a, nil
}

// storedDocument is the raw row data LoadDocument rebuilds from.
type storedDocument struct {
	summary   DocumentSummary
	meta      ir.Object
	initial   ir.InitialState
	clipboard []ir.Operation
	logs      map[ir.Scope][]ir.Operation
}

func (s *Store) readStored(ctx context.Context, id string) (storedDocument, error) {
	sum, err := s.ReadSummary(ctx, id)
	if err != nil {
		return storedDocument{}, err
	}

	var metaJSON, initialJSON, clipboardJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT meta, initial_state, clipboard FROM documents WHERE id = ?
	`, id).Scan(&metaJSON, &initialJSON, &clipboardJSON)
	if err != nil {
		return storedDocument{}, fmt.Errorf("read document %s: %w", id, err)
	}

	stored := storedDocument{summary: sum, logs: make(map[ir.Scope][]ir.Operation)}
	if stored.meta, err = unmarshalMeta(metaJSON); err != nil {
		return storedDocument{}, err
	}
	if stored.initial, err = unmarshalInitialState(initialJSON); err != nil {
		return storedDocument{}, err
	}
	if stored.clipboard, err = unmarshalClipboard(clipboardJSON); err != nil {
		return storedDocument{}, err
	}

	scopes := make([]ir.Scope, 0, len(sum.Revision)+len(stored.initial.State))
	for scope := range sum.Revision {
		scopes = append(scopes, scope)
	}
	for scope := range stored.initial.State {
		scopes = append(scopes, scope)
	}
	slices.Sort(scopes)
	for _, scope := range slices.Compact(scopes) {
		ops, err := s.ReadOperations(ctx, id, scope)
		if err != nil {
			return storedDocument{}, err
		}
		stored.logs[scope] = ops
	}
	return stored, nil
}

// InvalidLogError lists the positions of a stored document whose index
// does not follow its predecessor.
type InvalidLogError struct {
	ID         string
	Violations []oplog.IndexError
}

func (e *InvalidLogError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %v", v.Scope, v)
	}
	return fmt.Sprintf("document %s: %v: %s", e.ID, ErrInvalidLog, strings.Join(msgs, "; "))
}

// Is reports ErrInvalidLog.
func (e *InvalidLogError) Is(target error) bool {
	return target == ErrInvalidLog
}

// LoadDocument rebuilds a stored document.
//
// Stored logs are checked with oplog.ValidateOperations first; a log with
// gaps or out-of-order indices is rejected with *InvalidLogError before
// anything is replayed.
//
// Operations below the stored revision of their scope are replayed onto
// the initial snapshot. Operations at or past it were appended by a writer
// whose header update was not saved; they are applied on top with their
// stored hash and timestamp.
func (s *Store) LoadDocument(ctx context.Context, id string, r Replayer, opts engine.ReplayOptions) (*ir.Document, error) {
	stored, err := s.readStored(ctx, id)
	if err != nil {
		return nil, err
	}
	if violations := oplog.ValidateOperations(stored.logs); len(violations) > 0 {
		return nil, &InvalidLogError{ID: id, Violations: violations}
	}

	below := make(map[ir.Scope][]ir.Operation, len(stored.logs))
	var pending []ir.Operation
	for _, scope := range slices.Sorted(maps.Keys(stored.logs)) {
		ops := stored.logs[scope]
		rev := stored.summary.Revision[scope]
		cut := len(ops)
		for cut > 0 && ops[cut-1].Index >= rev {
			cut--
		}
		below[scope] = ops[:cut]
		pending = append(pending, ops[cut:]...)
	}

	doc, err := r.Replay(stored.initial, below, opts)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	for _, op := range pending {
		doc, err = r.ApplyOperation(doc, op, engine.ReuseHash(), engine.ReuseTimestamp())
		if err != nil {
			return nil, fmt.Errorf("load document %s: apply %s#%d: %w", id, op.Scope, op.Index, err)
		}
	}

	doc.Meta = stored.meta
	doc.Created = stored.summary.Created
	doc.Clipboard = stored.clipboard
	if stored.summary.LastModified > doc.LastModified {
		doc.LastModified = stored.summary.LastModified
	}
	for scope, ops := range doc.Operations {
		if len(ops) == 0 {
			continue
		}
		doc.Revision[scope] = oplog.Revision(ops)
	}
	return doc, nil
}
