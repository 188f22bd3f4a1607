package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docreduce/internal/ir"
)

// GoldenDir is where golden trace files live, relative to the test package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the trace and final header of a scenario run.
// Timestamps, IDs and hashes are left out so the snapshot only changes
// when behaviour does.
type TraceSnapshot struct {
	ScenarioName string                 `json:"scenario_name"`
	DocumentType string                 `json:"document_type"`
	Name         string                 `json:"name"`
	Revision     map[ir.Scope]int       `json:"revision"`
	State        map[ir.Scope]ir.Object `json:"state"`
	Trace        []TraceEvent           `json:"trace"`
}

// NewTraceSnapshot builds the snapshot of a finished run.
func NewTraceSnapshot(scenarioName string, result *Result) TraceSnapshot {
	s := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	if doc := result.Document; doc != nil {
		s.DocumentType = doc.DocumentType
		s.Name = doc.Name
		s.Revision = doc.Revision
		s.State = doc.State
	}
	return s
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = event.toCanonical()
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"document_type": s.DocumentType,
		"name":          s.Name,
		"revision":      scopeMap(s.Revision),
		"state":         scopeMap(s.State),
		"trace":         traceList,
	}
}

// TraceJSON renders the snapshot of a run as canonical JSON, the format
// of golden files.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := NewTraceSnapshot(scenarioName, result)
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
