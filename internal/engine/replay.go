package engine

import (
	"slices"
	"strconv"

	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// ReplayOptions tunes Replay.
type ReplayOptions struct {
	// UseResultingState resumes each scope from the latest operation in its
	// collapsed view that carries a memoized ResultingState.
	UseResultingState bool

	// ReuseHash keeps stored hashes instead of recomputing them.
	ReuseHash bool

	// VerifyHashes recomputes every hash and fails with HASH_MISMATCH when
	// one differs from the stored value.
	VerifyHashes bool
}

// Replay rebuilds a document from its initial snapshot and per-scope logs.
//
// Each scope, in sorted order, folds the garbage-collected view of its log
// with skip resolution disabled and stored timestamps reused. The returned
// document carries the durable logs verbatim, so replaying it again gives
// an identical result.
func (e *Engine) Replay(initial ir.InitialState, operations map[ir.Scope][]ir.Operation, opts ReplayOptions) (*ir.Document, error) {
	doc := ir.NewDocument(initial)

	scopes := make([]ir.Scope, 0, len(operations))
	for scope := range operations {
		scopes = append(scopes, scope)
	}
	slices.Sort(scopes)

	cfg := newDispatchConfig([]DispatchOption{IgnoreSkipOperations(), ReuseTimestamp()})
	cfg.reuseHash = opts.ReuseHash && !opts.VerifyHashes

	for _, scope := range scopes {
		view := oplog.View(operations[scope])
		start := 0
		if opts.UseResultingState {
			start = resumeFrom(doc, scope, view)
		}

		// Folding appends to doc.Operations; the durable log replaces it below.
		doc.Operations[scope] = slices.Clone(view[:start])
		for _, op := range view[start:] {
			if err := e.check(op.Action); err != nil {
				return nil, err
			}
			next, err := e.apply(doc, fromOperation(op, cfg), cfg)
			if err != nil {
				return nil, err
			}
			if opts.VerifyHashes {
				if err := verifyHash(next, scope, op); err != nil {
					return nil, err
				}
			}
			doc = next
		}
	}

	for _, scope := range scopes {
		doc.Operations[scope] = ir.CloneOperations(operations[scope])
		if doc.Operations[scope] == nil {
			doc.Operations[scope] = []ir.Operation{}
		}
		doc.Revision[scope] = oplog.Revision(operations[scope])
		for _, op := range operations[scope] {
			if op.Error == "" {
				mergeAttachments(doc.Attachments, op.Attachments)
			}
			if op.Timestamp > doc.LastModified {
				doc.LastModified = op.Timestamp
			}
		}
	}
	doc.Clipboard = []ir.Operation{}
	return doc, nil
}

// resumeFrom installs the latest memoized state of the view and returns
// the position to continue folding from. The header name still follows
// the SET_NAME and LOAD_STATE operations that are not re-applied.
func resumeFrom(doc *ir.Document, scope ir.Scope, view []ir.Operation) int {
	at := -1
	for i := len(view) - 1; i >= 0; i-- {
		if view[i].ResultingState != nil && view[i].Error == "" {
			at = i
			break
		}
	}
	if at < 0 {
		return 0
	}

	for _, op := range view[:at+1] {
		if op.Error != "" {
			continue
		}
		switch op.Type {
		case ir.ActionSetName:
			if name, ok := op.Input.(ir.String); ok {
				doc.Name = string(name)
			}
		case ir.ActionLoadState:
			if load, err := parseLoadState(op.Input); err == nil {
				doc.Name = load.name
			}
		}
	}
	doc.State[scope] = view[at].ResultingState.Clone()
	return at + 1
}

func verifyHash(doc *ir.Document, scope ir.Scope, stored ir.Operation) error {
	if stored.Hash == "" || stored.Error != "" {
		return nil
	}
	ops := doc.Operations[scope]
	got := ops[len(ops)-1]
	if got.Hash == stored.Hash {
		return nil
	}
	return &Error{
		Code:    ErrCodeHashMismatch,
		Scope:   scope,
		Message: "replayed state hash differs from the stored hash",
		Details: map[string]string{
			"index":    strconv.Itoa(stored.Index),
			"expected": stored.Hash,
			"actual":   got.Hash,
		},
	}
}
