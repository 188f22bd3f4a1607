package doctype

import (
	"errors"
	"fmt"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
)

// CounterType is the document type name of the counter model.
const CounterType = "docreduce/counter"

// Counter action types.
const (
	ActionIncrement    = "INCREMENT"
	ActionDecrement    = "DECREMENT"
	ActionSetLocalName = "SET_LOCAL_NAME"
	ActionFail         = "FAIL"
)

// ErrForcedFailure is returned by the counter reducer for FAIL actions.
var ErrForcedFailure = errors.New("forced failure")

// Counter is a minimal document type: a global count and a local name.
// It exists to exercise the engine from the CLI, the harness and tests.
func Counter() Model {
	return Model{
		Type:    CounterType,
		Reducer: counterReducer,
		InitialState: func() ir.InitialState {
			return ir.InitialState{
				Header: ir.Header{DocumentType: CounterType},
				State: map[ir.Scope]ir.Object{
					ir.ScopeGlobal: {"count": ir.Int(0)},
					ir.ScopeLocal:  {"name": ir.String("")},
				},
			}
		},
		Actions: []string{ActionIncrement, ActionDecrement, ActionSetLocalName, ActionFail},
	}
}

func counterReducer(state ir.Object, action ir.Action, _ engine.SignalDispatch) (ir.Object, error) {
	switch action.Type {
	case ActionIncrement, ActionDecrement:
		by := int64(1)
		if input, ok := action.Input.(ir.Object); ok {
			if n, ok := input.Int("by"); ok {
				by = n
			}
		}
		if action.Type == ActionDecrement {
			by = -by
		}
		count, _ := state.Int("count")
		state["count"] = ir.Int(count + by)
		return nil, nil
	case ActionSetLocalName:
		name, ok := action.Input.(ir.String)
		if !ok {
			return nil, fmt.Errorf("%s input must be a string", ActionSetLocalName)
		}
		state["name"] = name
		return nil, nil
	case ActionFail:
		if msg, ok := action.Input.(ir.String); ok && msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrForcedFailure, string(msg))
		}
		return nil, ErrForcedFailure
	default:
		return nil, fmt.Errorf("counter: unknown action %q", action.Type)
	}
}

// Increment adds one to the global count.
func Increment() ir.Action {
	return ir.NewAction(ActionIncrement, ir.Object{}, ir.ScopeGlobal)
}

// IncrementBy adds n to the global count.
func IncrementBy(n int) ir.Action {
	return ir.NewAction(ActionIncrement, ir.Object{"by": ir.Int(n)}, ir.ScopeGlobal)
}

// Decrement subtracts one from the global count.
func Decrement() ir.Action {
	return ir.NewAction(ActionDecrement, ir.Object{}, ir.ScopeGlobal)
}

// SetLocalName sets the name in the local scope.
func SetLocalName(name string) ir.Action {
	return ir.NewAction(ActionSetLocalName, ir.String(name), ir.ScopeLocal)
}

// Fail makes the reducer return an error.
func Fail(message string) ir.Action {
	return ir.NewAction(ActionFail, ir.String(message), ir.ScopeGlobal)
}
