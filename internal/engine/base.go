package engine

import (
	"fmt"

	"github.com/roach88/docreduce/internal/ir"
)

// loadStateInput is the decoded payload of a LOAD_STATE action.
type loadStateInput struct {
	name       string
	state      ir.Object
	operations int
}

func parseLoadState(input ir.Value) (loadStateInput, error) {
	obj, ok := input.(ir.Object)
	if !ok {
		return loadStateInput{}, fmt.Errorf("LOAD_STATE input must be an object, got %T", input)
	}
	snapshot, ok := obj.Object("state")
	if !ok {
		return loadStateInput{}, fmt.Errorf("LOAD_STATE input.state must be an object")
	}
	name, ok := snapshot.String("name")
	if !ok {
		return loadStateInput{}, fmt.Errorf("LOAD_STATE input.state.name must be a string")
	}
	state, ok := snapshot.Object("state")
	if !ok {
		return loadStateInput{}, fmt.Errorf("LOAD_STATE input.state.state must be an object")
	}
	operations, _ := obj.Int("operations")
	return loadStateInput{name: name, state: state, operations: int(operations)}, nil
}

// pruneRange decodes a PRUNE payload. A missing end means the end of the log.
func pruneRange(input ir.Value, logLength int) (int, int, error) {
	obj, ok := input.(ir.Object)
	if !ok {
		return 0, 0, fmt.Errorf("PRUNE input must be an object, got %T", input)
	}
	start, ok := obj.Int("start")
	if !ok {
		start = 0
	}
	end, ok := obj.Int("end")
	if !ok {
		end = int64(logLength)
	}
	return int(start), int(end), nil
}
