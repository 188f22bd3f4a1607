package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBaseAction(t *testing.T) {
	for _, typ := range []string{ActionSetName, ActionUndo, ActionRedo, ActionPrune, ActionLoadState, ActionNoop} {
		assert.True(t, IsBaseAction(typ), typ)
	}
	assert.False(t, IsBaseAction("INCREMENT"))
}

func TestActionCreators(t *testing.T) {
	assert.Equal(t, Action{Type: ActionSetName, Input: String("doc"), Scope: ScopeGlobal}, SetName("doc"))
	assert.Equal(t, Action{Type: ActionUndo, Input: Int(2), Scope: ScopeLocal}, Undo(2, ScopeLocal))
	assert.Equal(t, Action{Type: ActionRedo, Input: Int(1), Scope: ScopeGlobal}, Redo(1, ScopeGlobal))
	assert.Equal(t, Object{"start": Int(1), "end": Int(4)}, Prune(1, 4, ScopeGlobal).Input)

	load := LoadState("snap", Object{"count": Int(3)}, 5, ScopeGlobal)
	assert.Equal(t, ActionLoadState, load.Type)
	assert.Equal(t, Object{
		"state":      Object{"name": String("snap"), "state": Object{"count": Int(3)}},
		"operations": Int(5),
	}, load.Input)
}

func TestOperationJSONRoundTrip(t *testing.T) {
	op := Operation{
		Action: Action{
			ID:    "op-1",
			Type:  "INCREMENT",
			Input: Object{"by": Int(2)},
			Scope: ScopeGlobal,
			Attachments: []AttachmentInput{{
				Attachment: Attachment{Data: "aGk=", MimeType: "text/plain"},
				Hash:       "h1",
			}},
		},
		Index:          3,
		Timestamp:      "2024-01-01T00:00:00.000Z",
		Hash:           "abc",
		Skip:           1,
		ResultingState: Object{"count": Int(2)},
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)

	var back Operation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, op, back)
}

func TestOperationJSONFlatLayout(t *testing.T) {
	data := []byte(`{"type":"SET_NAME","input":"x","scope":"global","index":0,"timestamp":"t","hash":"h","skip":0}`)

	var op Operation
	require.NoError(t, json.Unmarshal(data, &op))
	assert.Equal(t, ActionSetName, op.Type)
	assert.Equal(t, String("x"), op.Input)
	assert.Equal(t, "h", op.Hash)
	assert.Empty(t, op.Error)
}

func TestActionUnmarshalRejectsFloatInput(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"X","input":{"v":1.5},"scope":"global"}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 4, 5, 123456789, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-03-05T09:04:05.123Z", FormatTimestamp(ts))
}

func TestNewDocumentAndClone(t *testing.T) {
	doc := NewDocument(InitialState{
		Header: Header{Name: "d", DocumentType: "counter", Created: "2024-01-01T00:00:00.000Z"},
		State:  map[Scope]Object{ScopeGlobal: {"count": Int(0)}, ScopeLocal: {}},
	})

	assert.Equal(t, map[Scope]int{ScopeGlobal: 0, ScopeLocal: 0}, doc.Revision)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", doc.LastModified)
	assert.Equal(t, []Scope{ScopeGlobal, ScopeLocal}, doc.Scopes())
	assert.Empty(t, doc.Operations[ScopeGlobal])

	clone := doc.Clone()
	clone.State[ScopeGlobal]["count"] = Int(5)
	clone.Revision[ScopeGlobal] = 9
	clone.Operations[ScopeGlobal] = append(clone.Operations[ScopeGlobal], Operation{Index: 0})

	assert.Equal(t, Int(0), doc.State[ScopeGlobal]["count"])
	assert.Equal(t, Int(0), doc.InitialState.State[ScopeGlobal]["count"])
	assert.Equal(t, 0, doc.Revision[ScopeGlobal])
	assert.Empty(t, doc.Operations[ScopeGlobal])
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	doc := NewDocument(InitialState{
		Header: Header{Name: "d", DocumentType: "counter", Created: "c"},
		State:  map[Scope]Object{ScopeGlobal: {"count": Int(1)}},
	})
	doc.Operations[ScopeGlobal] = []Operation{{
		Action: Action{Type: "INCREMENT", Input: Object{}, Scope: ScopeGlobal},
		Index:     0,
		Timestamp: "c",
		Hash:      "h",
	}}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, doc.Name, back.Name)
	assert.Equal(t, doc.State, back.State)
	assert.Equal(t, doc.Operations, back.Operations)
	assert.Equal(t, doc.InitialState.State, back.InitialState.State)
}
