// Package schema validates base action payloads against embedded CUE
// definitions before they reach the engine's log mutation path.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docreduce/internal/ir"
)

//go:embed actions.cue
var actionsCUE string

// definitions maps base action types to their CUE definition path.
var definitions = map[string]string{
	ir.ActionSetName:   "#SetName",
	ir.ActionUndo:      "#Undo",
	ir.ActionRedo:      "#Redo",
	ir.ActionPrune:     "#Prune",
	ir.ActionLoadState: "#LoadState",
	ir.ActionNoop:      "#Noop",
}

// Validator checks base actions. Custom action types pass through
// unchecked: their payloads belong to the document type.
//
// A cue.Context is not safe for concurrent use, so Validate serializes
// access with a mutex.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[string]cue.Value
}

// NewValidator compiles the embedded definitions.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(actionsCUE, cue.Filename("actions.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile action schema: %w", formatCUEError("", err))
	}

	defs := make(map[string]cue.Value, len(definitions))
	for actionType, path := range definitions {
		def := root.LookupPath(cue.ParsePath(path))
		if !def.Exists() {
			return nil, fmt.Errorf("action schema: missing definition %s", path)
		}
		defs[actionType] = def
	}
	return &Validator{ctx: ctx, defs: defs}, nil
}

// MustNewValidator is like NewValidator but panics on error.
// The schema is embedded, so an error here is a build defect.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns a *ValidationError when a base action's payload does
// not match its definition.
func (v *Validator) Validate(action ir.Action) error {
	def, ok := v.defs[action.Type]
	if !ok {
		return nil
	}

	data, err := json.Marshal(action)
	if err != nil {
		return &ValidationError{ActionType: action.Type, Message: err.Error()}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.CompileBytes(data, cue.Filename(action.Type+".json"))
	if err := value.Err(); err != nil {
		return formatCUEError(action.Type, err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(action.Type, err)
	}
	return nil
}

// ValidationError represents a schema violation with source position.
type ValidationError struct {
	ActionType string
	Message    string
	Pos        token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.ActionType, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ActionType, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(actionType string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{ActionType: actionType, Message: err.Error()}
	}

	first := errs[0]
	verr := &ValidationError{ActionType: actionType, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		verr.Pos = positions[0]
	}
	return verr
}
