package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// inbound is the unit flowing through the pipeline: an action plus, for
// operations received from another log, the metadata they already carry.
type inbound struct {
	action    ir.Action
	index     *int
	timestamp string
	hash      string
	skip      int
}

// Dispatch applies a fresh action to doc and returns the new document.
// The action receives the next index of its scope, a timestamp from the
// engine clock and, unless it has one, a generated ID.
func (e *Engine) Dispatch(doc *ir.Document, action ir.Action, opts ...DispatchOption) (*ir.Document, error) {
	cfg := newDispatchConfig(opts)
	return e.process(doc, inbound{action: action, skip: cfg.skip}, cfg)
}

// ApplyOperation appends an operation produced elsewhere (another writer,
// a stored log) at its own index. A skip carried by the operation is
// resolved like WithSkip.
func (e *Engine) ApplyOperation(doc *ir.Document, op ir.Operation, opts ...DispatchOption) (*ir.Document, error) {
	cfg := newDispatchConfig(opts)
	return e.process(doc, fromOperation(op, cfg), cfg)
}

func fromOperation(op ir.Operation, cfg dispatchConfig) inbound {
	skip := cfg.skip
	if op.Skip > 0 {
		skip = op.Skip
	}
	index := op.Index
	return inbound{
		action:    op.Action,
		index:     &index,
		timestamp: op.Timestamp,
		hash:      op.Hash,
		skip:      skip,
	}
}

// process validates the inbound action and applies it to a clone of doc.
func (e *Engine) process(doc *ir.Document, in inbound, cfg dispatchConfig) (*ir.Document, error) {
	if err := e.check(in.action); err != nil {
		return nil, err
	}
	return e.apply(doc.Clone(), in, cfg)
}

// apply runs the pipeline on next, which the caller owns. On error next
// may be partially modified and must be discarded.
func (e *Engine) apply(next *ir.Document, in inbound, cfg dispatchConfig) (*ir.Document, error) {
	action := in.action
	scope := action.Scope
	if next.Operations == nil {
		next.Operations = make(map[ir.Scope][]ir.Operation)
	}
	if next.State == nil {
		next.State = make(map[ir.Scope]ir.Object)
	}
	if next.Revision == nil {
		next.Revision = make(map[ir.Scope]int)
	}
	if next.Attachments == nil {
		next.Attachments = make(map[string]ir.Attachment)
	}

	originalType := action.Type
	switch originalType {
	case ir.ActionUndo:
		if in.skip > 0 {
			return nil, newError(ErrCodeSkipConflict, scope, "cannot undo with a pending skip of %d", in.skip)
		}
		t, err := e.undo(next, action)
		if err != nil {
			return nil, err
		}
		next.Clipboard = t.clipboard
		action = t.action
		index := t.index
		in = inbound{action: action, index: &index, skip: t.skip}
	case ir.ActionRedo:
		if in.skip > 0 {
			return nil, newError(ErrCodeSkipConflict, scope, "cannot redo with a pending skip of %d", in.skip)
		}
		redone, clipboard, err := redo(next, action)
		if err != nil {
			return nil, err
		}
		next.Clipboard = clipboard
		action = redone
		in = inbound{action: action}
	case ir.ActionPrune:
		start, end, err := pruneRange(action.Input, len(next.Operations[scope]))
		if err != nil {
			return nil, &Error{Code: ErrCodeSchemaViolation, Scope: scope, Message: err.Error(), Err: err}
		}
		return e.Prune(next, scope, start, end)
	default:
		if !cfg.ignoreSkip {
			next.Clipboard = clearClipboard(next.Clipboard, scope)
		}
	}

	ops := next.Operations[scope]
	index, err := oplog.ResolveIndex(ops, in.index, in.skip)
	if err != nil {
		return nil, orderingError(err, scope)
	}

	prevName := next.Name
	prevState := next.State[scope]

	if in.skip > 0 && !cfg.ignoreSkip {
		name, state, err := e.resolveSkip(next, scope, index, in.skip)
		if err != nil {
			return nil, err
		}
		next.Name = name
		next.State[scope] = state
	}

	if action.ID == "" {
		action.ID = e.ids.Generate()
	}
	timestamp := in.timestamp
	if !cfg.reuseTimestamp || timestamp == "" {
		timestamp = e.Now()
	}
	op := ir.Operation{
		Action:    action,
		Index:     index,
		Timestamp: timestamp,
		Skip:      in.skip,
	}

	e.logger.Debug("dispatch",
		"type", action.Type,
		"scope", scope,
		"index", index,
		"skip", in.skip,
	)

	if err := e.applyAction(next, &op, cfg); err != nil {
		op.Error = err.Error()
		op.Skip = 0
		next.Name = prevName
		next.State[scope] = prevState
		e.logger.Warn("reducer failed",
			"type", action.Type,
			"scope", scope,
			"index", index,
			"error", err,
		)
	} else {
		if cfg.reuseHash && in.hash != "" {
			op.Hash = in.hash
		} else {
			hash, err := ir.HashState(e.hasher, next.State[scope])
			if err != nil {
				return nil, fmt.Errorf("hash %s state: %w", scope, err)
			}
			op.Hash = hash
		}
		mergeAttachments(next.Attachments, action.Attachments)
		if cfg.memoize {
			op.ResultingState = next.State[scope].Clone()
		}
	}

	next.Operations[scope] = append(ops, op)
	next.Revision[scope] = index + 1
	next.LastModified = timestamp
	return next, nil
}

// applyAction runs the base handler or the document reducer for op.
// Only reducer failures are returned; they are recorded, not raised.
func (e *Engine) applyAction(doc *ir.Document, op *ir.Operation, cfg dispatchConfig) error {
	scope := op.Scope
	switch op.Type {
	case ir.ActionNoop:
		return nil
	case ir.ActionSetName:
		name, ok := op.Input.(ir.String)
		if !ok {
			return fmt.Errorf("SET_NAME input must be a string, got %T", op.Input)
		}
		doc.Name = string(name)
		return nil
	case ir.ActionLoadState:
		load, err := parseLoadState(op.Input)
		if err != nil {
			return err
		}
		doc.Name = load.name
		doc.State[scope] = load.state.Clone()
		return nil
	}

	state, err := e.runReducer(doc.State[scope], op.Action, cfg.signal)
	if err != nil {
		return err
	}
	doc.State[scope] = state
	return nil
}

// resolveSkip rebuilds name and scope state from the collapsed view of
// the log as if an operation at index with the given skip were appended.
func (e *Engine) resolveSkip(doc *ir.Document, scope ir.Scope, index, skip int) (string, ir.Object, error) {
	logs := make(map[ir.Scope][]ir.Operation, len(doc.Operations))
	for s, ops := range doc.Operations {
		logs[s] = ops
	}
	logs[scope] = oplog.SkipHeaderOperations(doc.Operations[scope], index, skip)

	replayed, err := e.Replay(doc.InitialState, logs, ReplayOptions{UseResultingState: true})
	if err != nil {
		return "", nil, fmt.Errorf("resolve skip %d at index %d: %w", skip, index, err)
	}
	return replayed.Name, replayed.State[scope], nil
}

// check rejects actions the pipeline cannot route and base actions whose
// payload fails the schema.
func (e *Engine) check(action ir.Action) error {
	if action.Type == "" {
		return newError(ErrCodeInvalidAction, action.Scope, "action type is required")
	}
	if action.Scope == "" {
		return newError(ErrCodeInvalidAction, action.Scope, "action %s has no scope", action.Type)
	}
	if e.validator == nil || !ir.IsBaseAction(action.Type) {
		return nil
	}
	if err := e.validator.Validate(action); err != nil {
		return &Error{
			Code:    ErrCodeSchemaViolation,
			Scope:   action.Scope,
			Message: err.Error(),
			Err:     err,
		}
	}
	return nil
}

func orderingError(err error, scope ir.Scope) error {
	code := ErrCodeStaleOperation
	if errors.Is(err, oplog.ErrMissingOperations) {
		code = ErrCodeMissingOperations
	}
	return &Error{Code: code, Scope: scope, Message: err.Error(), Err: err}
}

// mergeAttachments adds attachments not yet in the store. Writing a hash
// that already exists is a no-op.
func mergeAttachments(store map[string]ir.Attachment, inputs []ir.AttachmentInput) {
	for _, in := range inputs {
		if _, ok := store[in.Hash]; ok {
			continue
		}
		store[in.Hash] = in.Attachment
	}
}
