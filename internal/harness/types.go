package harness

import (
	"maps"
	"slices"

	"github.com/roach88/docreduce/internal/ir"
)

// TraceEvent summarizes one executed step: the tail of the scope log after
// the step, or the error code when the engine rejected it.
type TraceEvent struct {
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Scope     string `json:"scope"`
	Type      string `json:"type,omitempty"`
	Index     int    `json:"index"`
	Skip      int    `json:"skip"`
	Error     string `json:"error,omitempty"`
	LogLength int    `json:"log_length"`
	Rejected  string `json:"rejected,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, repeats included.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Document is the final document.
	Document *ir.Document `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addApplied records the tail of scope after a successful step.
func (r *Result) addApplied(step int, action string, doc *ir.Document, scope ir.Scope) {
	ev := TraceEvent{Step: step, Action: action, Scope: string(scope)}
	ops := doc.Operations[scope]
	ev.LogLength = len(ops)
	if len(ops) > 0 {
		tail := ops[len(ops)-1]
		ev.Type = tail.Type
		ev.Index = tail.Index
		ev.Skip = tail.Skip
		ev.Error = tail.Error
	}
	r.Trace = append(r.Trace, ev)
}

// addRejected records a step the engine refused.
func (r *Result) addRejected(step int, action string, scope ir.Scope, code string) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:     step,
		Action:   action,
		Scope:    string(scope),
		Rejected: code,
	})
}

// toCanonical converts an event to plain data for canonical JSON.
// Rejected steps carry no log position.
func (e TraceEvent) toCanonical() map[string]any {
	m := map[string]any{
		"step":   e.Step,
		"action": e.Action,
		"scope":  e.Scope,
	}
	if e.Rejected != "" {
		m["rejected"] = e.Rejected
		return m
	}
	m["type"] = e.Type
	m["index"] = e.Index
	m["skip"] = e.Skip
	m["log_length"] = e.LogLength
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

func scopeMap[V any](in map[ir.Scope]V) map[string]any {
	out := make(map[string]any, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		out[string(k)] = in[k]
	}
	return out
}
