package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sanity-io/litter"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Scope    string       // Scope the assertion inspected, if any
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Scope != "" {
		fmt.Fprintf(&buf, " [%s]", e.Scope)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			if ev.Rejected != "" {
				fmt.Fprintf(&buf, "  [%d] %s %s rejected %s\n", ev.Step, ev.Scope, ev.Action, ev.Rejected)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s #%d skip=%d\n", ev.Step, ev.Scope, ev.Action, ev.Type, ev.Index, ev.Skip)
		}
	}

	return buf.String()
}

// AssertionContext provides what the document-level assertions need
// beyond the final document.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine

	// DocumentID is the key used by store_roundtrip.
	DocumentID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error
		doc := result.Document
		scope := ir.Scope(assertion.Scope)

		switch assertion.Type {
		case AssertState:
			err = assertState(doc, scope, assertion.Expect)
		case AssertName:
			err = assertName(doc, assertion.Expect)
		case AssertRevision:
			err = assertInt(AssertRevision, scope, assertion.Expect, doc.Revision[scope])
		case AssertLogLength:
			err = assertInt(AssertLogLength, scope, assertion.Expect, len(doc.Operations[scope]))
		case AssertTail:
			err = assertTail(doc, scope, assertion.Expect)
		case AssertClipboard:
			err = assertClipboard(doc, scope, assertion.Expect)
		case AssertDeterministicReplay:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("%s requires an engine", assertion.Type)
			} else {
				err = assertDeterministicReplay(actx.Engine, doc)
			}
		case AssertStoreRoundTrip:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("%s requires an engine", assertion.Type)
			} else {
				err = assertStoreRoundTrip(actx, doc)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, fmt.Sprintf("assertion[%d]: %s", i, err))
		}
	}

	return failures
}

// assertState checks that every expected key of the scope state matches.
// Keys not listed are ignored.
func assertState(doc *ir.Document, scope ir.Scope, expect any) error {
	want, err := ir.FromGo(expect)
	if err != nil {
		return fmt.Errorf("state: expect: %w", err)
	}
	wantObj, ok := want.(ir.Object)
	if !ok {
		return fmt.Errorf("state: expect must be a mapping, got %T", expect)
	}
	got := doc.State[scope]
	for _, key := range wantObj.SortedKeys() {
		if !ir.Equal(wantObj[key], got.Get(key)) {
			return &AssertionError{
				Type:     AssertState,
				Scope:    string(scope),
				Expected: fmt.Sprintf("%s = %s", key, litter.Sdump(ir.ToGo(wantObj[key]))),
				Actual:   litter.Sdump(ir.ToGo(got)),
			}
		}
	}
	return nil
}

func assertName(doc *ir.Document, expect any) error {
	want, ok := expect.(string)
	if !ok {
		return fmt.Errorf("name: expect must be a string, got %T", expect)
	}
	if doc.Name != want {
		return &AssertionError{Type: AssertName, Expected: fmt.Sprintf("%q", want), Actual: fmt.Sprintf("%q", doc.Name)}
	}
	return nil
}

func assertInt(kind string, scope ir.Scope, expect any, got int) error {
	want, ok := toInt(expect)
	if !ok {
		return fmt.Errorf("%s: expect must be an integer, got %T", kind, expect)
	}
	if got != want {
		return &AssertionError{Type: kind, Scope: string(scope), Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertTail checks the listed fields of the scope's last operation.
func assertTail(doc *ir.Document, scope ir.Scope, expect any) error {
	fields, ok := expect.(map[string]any)
	if !ok {
		return fmt.Errorf("tail: expect must be a mapping, got %T", expect)
	}
	ops := doc.Operations[scope]
	if len(ops) == 0 {
		return &AssertionError{Type: AssertTail, Scope: string(scope), Expected: litter.Sdump(fields), Actual: "empty log"}
	}
	op := ops[len(ops)-1]
	actual := map[string]any{
		"type":  op.Type,
		"index": op.Index,
		"skip":  op.Skip,
		"error": op.Error,
	}
	for key, want := range fields {
		got, known := actual[key]
		if !known {
			return fmt.Errorf("tail: unknown field %q", key)
		}
		if !assert.ObjectsAreEqualValues(want, got) {
			return &AssertionError{
				Type:     AssertTail,
				Scope:    string(scope),
				Expected: fmt.Sprintf("%s = %v", key, want),
				Actual:   litter.Sdump(actual),
			}
		}
	}
	return nil
}

// assertClipboard checks the indices of the scope's redo entries in
// clipboard order; the last one is redone first.
func assertClipboard(doc *ir.Document, scope ir.Scope, expect any) error {
	list, ok := expect.([]any)
	if !ok {
		return fmt.Errorf("clipboard: expect must be a list, got %T", expect)
	}
	want := make([]int, 0, len(list))
	for _, v := range list {
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("clipboard: expect entries must be integers, got %T", v)
		}
		want = append(want, n)
	}
	got := []int{}
	for _, op := range doc.Clipboard {
		if op.Scope == scope {
			got = append(got, op.Index)
		}
	}
	if !assert.ObjectsAreEqual(want, got) {
		return &AssertionError{Type: AssertClipboard, Scope: string(scope), Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertDeterministicReplay replays the logs twice and requires both
// results to match each other and the live document.
func assertDeterministicReplay(e *engine.Engine, doc *ir.Document) error {
	first, err := e.Replay(doc.InitialState, doc.Operations, engine.ReplayOptions{VerifyHashes: true})
	if err != nil {
		return fmt.Errorf("%s: first replay: %w", AssertDeterministicReplay, err)
	}
	second, err := e.Replay(first.InitialState, first.Operations, engine.ReplayOptions{})
	if err != nil {
		return fmt.Errorf("%s: second replay: %w", AssertDeterministicReplay, err)
	}
	if !assert.ObjectsAreEqual(first, second) {
		return &AssertionError{
			Type:     AssertDeterministicReplay,
			Expected: "identical replays",
			Actual:   litter.Sdump(first.State, second.State),
		}
	}
	if !assert.ObjectsAreEqual(doc.State, first.State) || doc.Name != first.Name {
		return &AssertionError{
			Type:     AssertDeterministicReplay,
			Expected: litter.Sdump(doc.Name, doc.State),
			Actual:   litter.Sdump(first.Name, first.State),
		}
	}
	return nil
}

// assertStoreRoundTrip saves the document to a fresh in-memory store and
// loads it back.
func assertStoreRoundTrip(actx *AssertionContext, doc *ir.Document) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("%s: open store: %w", AssertStoreRoundTrip, err)
	}
	defer st.Close()

	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	id := actx.DocumentID
	if id == "" {
		id = "scenario"
	}
	if err := st.SaveDocument(ctx, id, doc); err != nil {
		return fmt.Errorf("%s: save: %w", AssertStoreRoundTrip, err)
	}
	loaded, err := st.LoadDocument(ctx, id, actx.Engine, engine.ReplayOptions{})
	if err != nil {
		return fmt.Errorf("%s: load: %w", AssertStoreRoundTrip, err)
	}

	checks := []struct {
		field     string
		want, got any
	}{
		{"name", doc.Name, loaded.Name},
		{"state", doc.State, loaded.State},
		{"revision", doc.Revision, loaded.Revision},
		{"operations", doc.Operations, loaded.Operations},
		{"clipboard", doc.Clipboard, loaded.Clipboard},
	}
	for _, c := range checks {
		if !assert.ObjectsAreEqual(c.want, c.got) {
			return &AssertionError{
				Type:     AssertStoreRoundTrip,
				Expected: c.field + " = " + litter.Sdump(c.want),
				Actual:   litter.Sdump(c.got),
			}
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}
