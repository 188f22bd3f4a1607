package engine

import (
	"fmt"
	"maps"

	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// Prune collapses log positions [start, end) of scope into a single
// LOAD_STATE checkpoint holding the name and scope state reached at end.
//
// Operations after the range are shifted to follow the checkpoint. The
// returned document is produced by replaying the rebuilt logs, so its
// header reflects the checkpoint as actually applied. Redo history of the
// scope is dropped because it refers to the old indices.
func (e *Engine) Prune(doc *ir.Document, scope ir.Scope, start, end int) (*ir.Document, error) {
	ops := doc.Operations[scope]
	if start < 0 || end > len(ops) || start >= end {
		return nil, newError(ErrCodeInvalidPruneRange, scope,
			"invalid prune range [%d, %d) for %d operations", start, end, len(ops))
	}

	keepBefore := ops[:start]
	pruned := ops[start:end]
	keepAfter := ops[end:]

	lastPruned := pruned[len(pruned)-1].Index
	for _, op := range keepAfter {
		if op.Skip > 0 && op.Index-op.Skip <= lastPruned {
			return nil, newError(ErrCodeInvalidPruneRange, scope,
				"operation %d skips into the pruned range [%d, %d)", op.Index, start, end)
		}
	}

	// 1. Resulting name and state at the end of the range.
	through := maps.Clone(doc.Operations)
	through[scope] = ops[:end]
	reached, err := e.Replay(doc.InitialState, through, ReplayOptions{})
	if err != nil {
		return nil, fmt.Errorf("prune %s [%d, %d): %w", scope, start, end, err)
	}
	state := reached.State[scope]
	if state == nil {
		state = ir.Object{}
	}

	// 2. Checkpoint.
	var timestamp string
	switch {
	case len(keepBefore) > 0:
		timestamp = keepBefore[len(keepBefore)-1].Timestamp
	case len(keepAfter) > 0:
		timestamp = keepAfter[0].Timestamp
	default:
		timestamp = e.Now()
	}
	hash, err := ir.HashState(e.hasher, state)
	if err != nil {
		return nil, fmt.Errorf("hash checkpoint state: %w", err)
	}
	checkpoint := ir.Operation{
		Action:    ir.LoadState(reached.Name, state, len(pruned), scope),
		Index:     oplog.NextIndex(keepBefore),
		Timestamp: timestamp,
		Hash:      hash,
	}
	checkpoint.ID = e.ids.Generate()

	// 3. Shift the tail to follow the checkpoint.
	offset := checkpoint.Index - lastPruned
	rebuilt := make([]ir.Operation, 0, len(keepBefore)+1+len(keepAfter))
	rebuilt = append(rebuilt, ir.CloneOperations(keepBefore)...)
	rebuilt = append(rebuilt, checkpoint)
	for _, op := range keepAfter {
		shifted := op.Clone()
		shifted.Index += offset
		rebuilt = append(rebuilt, shifted)
	}

	// 4. Second replay over the rebuilt logs.
	logs := maps.Clone(doc.Operations)
	logs[scope] = rebuilt
	final, err := e.Replay(doc.InitialState, logs, ReplayOptions{})
	if err != nil {
		return nil, fmt.Errorf("prune %s: replay rebuilt log: %w", scope, err)
	}
	final.Meta = doc.Meta.Clone()
	final.Created = doc.Created
	final.Clipboard = clearClipboard(doc.Clipboard, scope)
	maps.Copy(final.Attachments, doc.Attachments)

	e.logger.Debug("prune",
		"scope", scope,
		"start", start,
		"end", end,
		"pruned", len(pruned),
		"checkpoint_index", checkpoint.Index,
	)
	return final, nil
}
