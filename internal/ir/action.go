package ir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scope names an independent partition of a document's state and log.
// Scopes are an open key set; global and local are conventional defaults.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// Base action types handled by the engine itself.
const (
	ActionSetName   = "SET_NAME"
	ActionUndo      = "UNDO"
	ActionRedo      = "REDO"
	ActionPrune     = "PRUNE"
	ActionLoadState = "LOAD_STATE"
	ActionNoop      = "NOOP"
)

// IsBaseAction reports whether actionType is handled by the engine rather
// than the document type's reducer.
func IsBaseAction(actionType string) bool {
	switch actionType {
	case ActionSetName, ActionUndo, ActionRedo, ActionPrune, ActionLoadState, ActionNoop:
		return true
	}
	return false
}

// TimestampLayout is the ISO-8601 UTC layout used for every timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Attachment is binary content referenced by hash from operations.
type Attachment struct {
	Data      string `json:"data"`
	MimeType  string `json:"mime_type"`
	Extension string `json:"extension,omitempty"`
	FileName  string `json:"file_name,omitempty"`
}

// AttachmentInput carries an attachment on an action together with the
// hash it is stored under.
type AttachmentInput struct {
	Attachment
	Hash string `json:"hash"`
}

// Action is a request to change a document.
type Action struct {
	ID          string            `json:"id,omitempty"`
	Type        string            `json:"type"`
	Input       Value             `json:"input"`
	Scope       Scope             `json:"scope"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

type actionJSON struct {
	ID          string            `json:"id,omitempty"`
	Type        string            `json:"type"`
	Input       json.RawMessage   `json:"input"`
	Scope       Scope             `json:"scope"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// UnmarshalJSON decodes the polymorphic input through UnmarshalValue.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var input Value
	if len(raw.Input) > 0 {
		v, err := UnmarshalValue(raw.Input)
		if err != nil {
			return fmt.Errorf("action %s input: %w", raw.Type, err)
		}
		input = v
	}
	*a = Action{
		ID:          raw.ID,
		Type:        raw.Type,
		Input:       input,
		Scope:       raw.Scope,
		Attachments: raw.Attachments,
	}
	return nil
}

// Clone deep-copies the action input and attachment list.
func (a Action) Clone() Action {
	out := a
	out.Input = CloneValue(a.Input)
	if a.Attachments != nil {
		out.Attachments = append([]AttachmentInput(nil), a.Attachments...)
	}
	return out
}

// Operation is an action committed to a scope's log.
//
// Skip > 0 means this operation supersedes the Skip operations before its
// index. Error is set when the document reducer rejected the action; the
// operation stays in the log so indices remain contiguous.
type Operation struct {
	Action
	Index          int    `json:"index"`
	Timestamp      string `json:"timestamp"`
	Hash           string `json:"hash"`
	Skip           int    `json:"skip"`
	Error          string `json:"error,omitempty"`
	ResultingState Object `json:"resulting_state,omitempty"`
}

// UnmarshalJSON is required because the embedded Action's decoder would
// otherwise be promoted and drop the operation fields.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var action Action
	if err := json.Unmarshal(data, &action); err != nil {
		return err
	}
	var rest struct {
		Index          int    `json:"index"`
		Timestamp      string `json:"timestamp"`
		Hash           string `json:"hash"`
		Skip           int    `json:"skip"`
		Error          string `json:"error,omitempty"`
		ResultingState Object `json:"resulting_state,omitempty"`
	}
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	*o = Operation{
		Action:         action,
		Index:          rest.Index,
		Timestamp:      rest.Timestamp,
		Hash:           rest.Hash,
		Skip:           rest.Skip,
		Error:          rest.Error,
		ResultingState: rest.ResultingState,
	}
	return nil
}

// Clone deep-copies the operation.
func (o Operation) Clone() Operation {
	out := o
	out.Action = o.Action.Clone()
	out.ResultingState = o.ResultingState.Clone()
	return out
}

// CloneOperations deep-copies a slice of operations. nil stays nil.
func CloneOperations(ops []Operation) []Operation {
	if ops == nil {
		return nil
	}
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

// NewAction builds a document-type specific action.
func NewAction(actionType string, input Value, scope Scope) Action {
	return Action{Type: actionType, Input: input, Scope: scope}
}

// SetName renames the document. It always targets the global scope.
func SetName(name string) Action {
	return NewAction(ActionSetName, String(name), ScopeGlobal)
}

// Undo reverts the last count operations of scope.
func Undo(count int, scope Scope) Action {
	return NewAction(ActionUndo, Int(count), scope)
}

// Redo re-applies the most recently undone operation of scope.
func Redo(count int, scope Scope) Action {
	return NewAction(ActionRedo, Int(count), scope)
}

// Prune collapses operations [start, end) of scope into a checkpoint.
func Prune(start, end int, scope Scope) Action {
	return NewAction(ActionPrune, Object{"start": Int(start), "end": Int(end)}, scope)
}

// LoadState replaces the name and scope state wholesale. operations records
// how many operations the checkpoint stands for.
func LoadState(name string, state Object, operations int, scope Scope) Action {
	return NewAction(ActionLoadState, Object{
		"state": Object{
			"name":  String(name),
			"state": state.Clone(),
		},
		"operations": Int(operations),
	}, scope)
}

// Noop is the placeholder action that carries a skip.
func Noop(scope Scope) Action {
	return NewAction(ActionNoop, Object{}, scope)
}
