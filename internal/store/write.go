package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/docreduce/internal/ir"
)

// SaveDocument writes doc under id in a single transaction.
//
// The header, snapshot, current state and clipboard are upserted. Each
// scope log is appended from the last stored position; a scope whose
// stored prefix diverges from doc (it was pruned) is rewritten. Attachments
// use ON CONFLICT DO NOTHING: content under an existing hash is never
// replaced.
func (s *Store) SaveDocument(ctx context.Context, id string, doc *ir.Document) error {
	if id == "" {
		return fmt.Errorf("save document: empty id")
	}

	initialJSON, err := marshalInitialState(doc.InitialState)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	stateJSON, err := marshalScopes(doc.State)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	clipboardJSON, err := marshalClipboard(doc.Clipboard)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	metaJSON, err := marshalMeta(doc.Meta)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save document %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents
		(id, document_type, name, created, last_modified, meta, initial_state, state, clipboard)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_type = excluded.document_type,
			name = excluded.name,
			last_modified = excluded.last_modified,
			meta = excluded.meta,
			initial_state = excluded.initial_state,
			state = excluded.state,
			clipboard = excluded.clipboard
	`,
		id,
		doc.DocumentType,
		doc.Name,
		doc.Created,
		doc.LastModified,
		metaJSON,
		initialJSON,
		stateJSON,
		clipboardJSON,
	)
	if err != nil {
		return fmt.Errorf("save document %s: upsert header: %w", id, err)
	}

	// Attachments first: operation rows reference them by hash.
	if err := writeAttachments(ctx, tx, id, doc); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}

	for _, scope := range doc.Scopes() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO revisions (doc_id, scope, revision)
			VALUES (?, ?, ?)
			ON CONFLICT(doc_id, scope) DO UPDATE SET revision = excluded.revision
		`, id, string(scope), doc.Revision[scope])
		if err != nil {
			return fmt.Errorf("save document %s: revision %s: %w", id, scope, err)
		}

		if err := writeOperations(ctx, tx, id, scope, doc.Operations[scope]); err != nil {
			return fmt.Errorf("save document %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save document %s: commit: %w", id, err)
	}
	return nil
}

// writeOperations appends the positions of ops not stored yet. If the
// stored log is not a prefix of ops the scope is rewritten.
func writeOperations(ctx context.Context, tx *sql.Tx, docID string, scope ir.Scope, ops []ir.Operation) error {
	var stored int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM operations WHERE doc_id = ? AND scope = ?
	`, docID, string(scope)).Scan(&stored)
	if err != nil {
		return fmt.Errorf("count %s operations: %w", scope, err)
	}

	from := stored
	if stored > 0 {
		prefix, err := storedPrefixMatches(ctx, tx, docID, scope, ops, stored)
		if err != nil {
			return err
		}
		if !prefix {
			_, err := tx.ExecContext(ctx, `
				DELETE FROM operations WHERE doc_id = ? AND scope = ?
			`, docID, string(scope))
			if err != nil {
				return fmt.Errorf("rewrite %s log: %w", scope, err)
			}
			from = 0
		}
	}

	for pos := from; pos < len(ops); pos++ {
		if err := insertOperation(ctx, tx, docID, scope, pos, ops[pos]); err != nil {
			return err
		}
	}
	return nil
}

// storedPrefixMatches compares every stored row against the operation at
// the same position. IDs, indices, types and hashes identify operations;
// a pruned log has a checkpoint where the old operations were, even when
// the shifted tail still lines up with the stored rows.
func storedPrefixMatches(ctx context.Context, tx *sql.Tx, docID string, scope ir.Scope, ops []ir.Operation, stored int) (bool, error) {
	if stored > len(ops) {
		return false, nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT position, id, op_index, type, hash FROM operations
		WHERE doc_id = ? AND scope = ?
		ORDER BY position
	`, docID, string(scope))
	if err != nil {
		return false, fmt.Errorf("read %s log: %w", scope, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos, index    int
			id, typ, hash string
		)
		if err := rows.Scan(&pos, &id, &index, &typ, &hash); err != nil {
			return false, fmt.Errorf("scan %s log: %w", scope, err)
		}
		if pos >= len(ops) {
			return false, nil
		}
		op := ops[pos]
		if op.ID != id || op.Index != index || op.Type != typ || op.Hash != hash {
			return false, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate %s log: %w", scope, err)
	}
	return true, nil
}

func insertOperation(ctx context.Context, tx *sql.Tx, docID string, scope ir.Scope, pos int, op ir.Operation) error {
	inputJSON, err := marshalValue(op.Input)
	if err != nil {
		return fmt.Errorf("operation %s#%d: %w", scope, op.Index, err)
	}
	resultJSON, err := marshalResultingState(op.ResultingState)
	if err != nil {
		return fmt.Errorf("operation %s#%d: %w", scope, op.Index, err)
	}
	refsJSON, err := marshalAttachmentRefs(op.Attachments)
	if err != nil {
		return fmt.Errorf("operation %s#%d: %w", scope, op.Index, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO operations
		(doc_id, scope, position, id, op_index, skip, type, input, timestamp, hash, error, resulting_state, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		docID,
		string(scope),
		pos,
		op.ID,
		op.Index,
		op.Skip,
		op.Type,
		inputJSON,
		op.Timestamp,
		op.Hash,
		op.Error,
		resultJSON,
		refsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert operation %s#%d: %w", scope, op.Index, err)
	}
	return nil
}

// writeAttachments stores the content of every attachment the document or
// its operations carry, and links the document's merged set to it.
func writeAttachments(ctx context.Context, tx *sql.Tx, docID string, doc *ir.Document) error {
	content := maps.Clone(doc.Attachments)
	if content == nil {
		content = make(map[string]ir.Attachment)
	}
	for _, ops := range doc.Operations {
		for _, op := range ops {
			for _, in := range op.Attachments {
				if _, ok := content[in.Hash]; !ok {
					content[in.Hash] = in.Attachment
				}
			}
		}
	}

	for _, hash := range slices.Sorted(maps.Keys(content)) {
		a := content[hash]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (hash, data, mime_type, extension, file_name)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(hash) DO NOTHING
		`, hash, a.Data, a.MimeType, a.Extension, a.FileName)
		if err != nil {
			return fmt.Errorf("write attachment %s: %w", hash, err)
		}
	}

	for _, hash := range slices.Sorted(maps.Keys(doc.Attachments)) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO document_attachments (doc_id, hash)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, docID, hash)
		if err != nil {
			return fmt.Errorf("link attachment %s: %w", hash, err)
		}
	}
	return nil
}
