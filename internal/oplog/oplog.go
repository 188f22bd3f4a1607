// Package oplog holds the bookkeeping for a scope's operation log: index
// assignment, ordering, the skip resolver and the garbage-collected
// replay view.
//
// The durable log is append-only. Nothing here mutates its input; every
// function returns a fresh slice.
package oplog

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/docreduce/internal/ir"
)

// Sentinel errors for log ordering violations. Callers match them with
// errors.Is; the engine maps them to structured error codes.
var (
	// ErrMissingOperations means an inbound index leaves a gap the skip
	// does not cover.
	ErrMissingOperations = errors.New("missing operations")

	// ErrStaleOperation means an inbound index is behind the log.
	ErrStaleOperation = errors.New("stale operation")
)

// LastIndex returns the index of the last operation, or -1 for an empty log.
func LastIndex(ops []ir.Operation) int {
	if len(ops) == 0 {
		return -1
	}
	return ops[len(ops)-1].Index
}

// NextIndex returns the index a new operation appended to ops receives.
func NextIndex(ops []ir.Operation) int {
	return LastIndex(ops) + 1
}

// Revision is the header revision for a scope log: last index + 1.
func Revision(ops []ir.Operation) int {
	return NextIndex(ops)
}

// ResolveIndex picks the index for an operation about to be appended.
// A nil index means "next". An explicit index is validated against the
// tail of the log:
//   - index - skip must not exceed the next expected index
//   - index must not be behind the last index, and may only equal it when
//     the new operation carries a skip (a coalesced NOOP)
func ResolveIndex(ops []ir.Operation, index *int, skip int) (int, error) {
	next := NextIndex(ops)
	if index == nil {
		return next, nil
	}
	if err := checkFollows(LastIndex(ops), *index, skip); err != nil {
		return 0, err
	}
	return *index, nil
}

func checkFollows(last, index, skip int) error {
	if skip < 0 {
		return fmt.Errorf("negative skip %d", skip)
	}
	if index-skip > last+1 {
		return fmt.Errorf("%w: expected index %d, got %d with skip %d", ErrMissingOperations, last+1, index, skip)
	}
	if index < last || (index == last && skip == 0) {
		return fmt.Errorf("%w: index %d is not after %d", ErrStaleOperation, index, last)
	}
	return nil
}

// SortOperations returns ops stably sorted by (index, skip).
// Coalesced NOOPs share an index; the larger skip sorts last and wins.
func SortOperations(ops []ir.Operation) []ir.Operation {
	out := slices.Clone(ops)
	slices.SortStableFunc(out, func(a, b ir.Operation) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Skip, b.Skip)
	})
	return out
}

// GarbageCollect returns the replay view of a sorted log. Scanning from the
// tail, every kept operation with index i and skip s hides the earlier
// operations whose index is at least i-s. Operations sharing the kept
// operation's index are hidden as well, which collapses coalesced NOOPs
// into the last one.
func GarbageCollect(sorted []ir.Operation) []ir.Operation {
	kept := make([]ir.Operation, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; {
		op := sorted[i]
		kept = append(kept, op)
		floor := op.Index - op.Skip
		i--
		for i >= 0 && sorted[i].Index >= floor {
			i--
		}
	}
	slices.Reverse(kept)
	return kept
}

// View is SortOperations followed by GarbageCollect.
func View(ops []ir.Operation) []ir.Operation {
	return GarbageCollect(SortOperations(ops))
}

// SkipHeaderOperations returns the replay view of ops as if an operation
// with the given index and skip had been appended, without that operation.
func SkipHeaderOperations(ops []ir.Operation, index, skip int) []ir.Operation {
	pending := ir.Operation{
		Action: ir.Noop(""),
		Index:  index,
		Skip:   skip,
	}
	view := View(append(slices.Clone(ops), pending))
	return view[:len(view)-1]
}

// DiffOperations returns the operations of a whose index does not appear
// in b, in a's order.
func DiffOperations(a, b []ir.Operation) []ir.Operation {
	indices := mapset.NewSet[int]()
	for _, op := range b {
		indices.Add(op.Index)
	}
	out := make([]ir.Operation, 0, len(a))
	for _, op := range a {
		if !indices.Contains(op.Index) {
			out = append(out, op)
		}
	}
	return out
}

// IndexError reports a log position whose index does not follow its
// predecessor.
type IndexError struct {
	Scope    ir.Scope
	Index    int
	Position int
}

func (e IndexError) Error() string {
	return fmt.Sprintf("Invalid operation index %d at position %d", e.Index, e.Position)
}

// ValidateOperations checks every scope log with the same rule ResolveIndex
// applies on append. It reports all violations instead of stopping at the
// first.
func ValidateOperations(logs map[ir.Scope][]ir.Operation) []IndexError {
	var errs []IndexError
	scopes := make([]ir.Scope, 0, len(logs))
	for s := range logs {
		scopes = append(scopes, s)
	}
	slices.Sort(scopes)

	for _, scope := range scopes {
		last := -1
		for pos, op := range logs[scope] {
			if err := checkFollows(last, op.Index, op.Skip); err != nil {
				errs = append(errs, IndexError{Scope: scope, Index: op.Index, Position: pos})
			}
			last = op.Index
		}
	}
	return errs
}
