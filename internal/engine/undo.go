package engine

import (
	"slices"

	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// undoTransform is the result of rewriting an UNDO into a NOOP.
type undoTransform struct {
	action    ir.Action
	index     int
	skip      int
	clipboard []ir.Operation
}

// undo computes the NOOP that voids the latest count real operations of
// the scope.
//
// When the log already ends in a NOOP with a skip, the new NOOP reuses its
// index and extends its skip; otherwise it takes the next index. Walking
// the collapsed view backward, NOOPs are jumped over whole and only real
// operations count toward the request. Asking for more than the scope has
// undoes everything available.
func (e *Engine) undo(doc *ir.Document, action ir.Action) (undoTransform, error) {
	scope := action.Scope
	count, ok := action.Input.(ir.Int)
	if !ok {
		return undoTransform{}, newError(ErrCodeSchemaViolation, scope, "UNDO input must be an integer, got %T", action.Input)
	}
	if count < 1 {
		return undoTransform{}, newError(ErrCodeInvalidUndo, scope, "invalid undo count %d: must be at least 1", count)
	}

	ops := doc.Operations[scope]
	if len(ops) == 0 {
		return undoTransform{}, newError(ErrCodeNothingToUndo, scope, "no operations to undo")
	}

	sorted := oplog.SortOperations(ops)
	view := oplog.GarbageCollect(sorted)

	tail := sorted[len(sorted)-1]
	noopIndex := tail.Index + 1
	skip := 0
	if tail.Type == ir.ActionNoop && tail.Skip > 0 {
		noopIndex = tail.Index
		skip = tail.Skip
	}

	undone := 0
	for i := len(view) - 1; i >= 0 && undone < int(count); i-- {
		op := view[i]
		if op.Index >= noopIndex-skip {
			continue
		}
		skip = noopIndex - op.Index
		if op.Type != ir.ActionNoop {
			undone++
		}
	}
	if undone == 0 {
		return undoTransform{}, newError(ErrCodeNothingToUndo, scope, "all operations are already undone")
	}

	// The clipboard receives what left the effective view, newest first.
	after := oplog.SkipHeaderOperations(ops, noopIndex, skip)
	removed := oplog.DiffOperations(view, after)
	stash := make([]ir.Operation, 0, len(removed))
	for _, op := range slices.Backward(removed) {
		if op.Type == ir.ActionNoop {
			continue
		}
		stash = append(stash, op.Clone())
	}

	e.logger.Debug("undo",
		"scope", scope,
		"count", undone,
		"index", noopIndex,
		"skip", skip,
	)

	noop := ir.Noop(scope)
	return undoTransform{
		action:    noop,
		index:     noopIndex,
		skip:      skip,
		clipboard: append(ir.CloneOperations(doc.Clipboard), stash...),
	}, nil
}

// redo pops the most recent clipboard entry for the scope and returns it
// as a fresh action.
func redo(doc *ir.Document, action ir.Action) (ir.Action, []ir.Operation, error) {
	scope := action.Scope
	count, ok := action.Input.(ir.Int)
	if !ok {
		return ir.Action{}, nil, newError(ErrCodeSchemaViolation, scope, "REDO input must be an integer, got %T", action.Input)
	}
	if count != 1 {
		return ir.Action{}, nil, newError(ErrCodeInvalidRedo, scope, "cannot redo %d operations: redo one at a time", count)
	}

	pos := -1
	for i := len(doc.Clipboard) - 1; i >= 0; i-- {
		if doc.Clipboard[i].Scope == scope {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ir.Action{}, nil, newError(ErrCodeNothingToRedo, scope, "no operations to redo")
	}

	entry := doc.Clipboard[pos]
	clipboard := make([]ir.Operation, 0, len(doc.Clipboard)-1)
	clipboard = append(clipboard, doc.Clipboard[:pos]...)
	clipboard = append(clipboard, doc.Clipboard[pos+1:]...)

	redone := entry.Action.Clone()
	redone.ID = ""
	return redone, clipboard, nil
}

// clearClipboard drops the clipboard entries of scope: a new edit
// invalidates the redo history.
func clearClipboard(clipboard []ir.Operation, scope ir.Scope) []ir.Operation {
	out := make([]ir.Operation, 0, len(clipboard))
	for _, op := range clipboard {
		if op.Scope != scope {
			out = append(out, op)
		}
	}
	return out
}
