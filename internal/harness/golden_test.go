package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/ir"
)

func TestTraceJSON_Canonical(t *testing.T) {
	result := NewResult()
	result.Document = &ir.Document{
		Header: ir.Header{
			Name:         "n",
			DocumentType: doctype.CounterType,
			Revision:     map[ir.Scope]int{ir.ScopeLocal: 0, ir.ScopeGlobal: 2},
		},
		State: map[ir.Scope]ir.Object{ir.ScopeGlobal: {"count": ir.Int(1)}},
	}
	result.Trace = []TraceEvent{
		{Step: 0, Action: "FAIL", Scope: "global", Type: "FAIL", Index: 0, LogLength: 1, Error: "boom"},
		{Step: 1, Action: "REDO", Scope: "global", Rejected: "NOTHING_TO_REDO"},
	}

	got, err := TraceJSON("golden_shape", result)
	require.NoError(t, err)

	want := `{"document_type":"docreduce/counter","name":"n",` +
		`"revision":{"global":2,"local":0},"scenario_name":"golden_shape",` +
		`"state":{"global":{"count":1}},"trace":[` +
		`{"action":"FAIL","error":"boom","index":0,"log_length":1,"scope":"global","skip":0,"step":0,"type":"FAIL"},` +
		`{"action":"REDO","rejected":"NOTHING_TO_REDO","scope":"global","step":1}]}`
	assert.Equal(t, want, string(got))
}

func TestTraceJSON_NoDocument(t *testing.T) {
	got, err := TraceJSON("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"document_type":"","name":"","revision":{},"scenario_name":"empty","state":{},"trace":[]}`, string(got))
}

func TestRunWithGolden_UnknownDocumentType(t *testing.T) {
	scenario := counterScenario([]Step{{Action: "INCREMENT"}})
	scenario.DocumentType = "acme/none"

	_, err := RunWithGolden(t, scenario)
	require.Error(t, err, "setup errors are returned before any golden comparison")
}
