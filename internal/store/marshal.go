package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/docreduce/internal/ir"
)

// marshalValue converts a Value to canonical JSON TEXT for storage.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalInput parses an action input. A stored null is a nil input.
func unmarshalInput(data string) (ir.Value, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	return v, nil
}

// marshalScopes stores per-scope state as one canonical object keyed by
// scope name.
func marshalScopes(state map[ir.Scope]ir.Object) (string, error) {
	obj := make(ir.Object, len(state))
	for scope, s := range state {
		if s == nil {
			s = ir.Object{}
		}
		obj[string(scope)] = s
	}
	return marshalValue(obj)
}

func unmarshalScopes(data string) (map[ir.Scope]ir.Object, error) {
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	out := make(map[ir.Scope]ir.Object, len(obj))
	for k, v := range obj {
		s, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("unmarshal state: scope %q is %T, not an object", k, v)
		}
		out[ir.Scope(k)] = s
	}
	return out, nil
}

// marshalResultingState returns NULL for operations without a memoized
// state.
func marshalResultingState(state ir.Object) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalValue(state)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalResultingState(data sql.NullString) (ir.Object, error) {
	if !data.Valid {
		return nil, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data.String), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal resulting state: %w", err)
	}
	return obj, nil
}

// marshalJSON encodes structs that are not Values (initial state,
// clipboard, attachment references). HTML escaping is disabled to match
// canonical output.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalInitialState(initial ir.InitialState) (string, error) {
	s, err := marshalJSON(initial)
	if err != nil {
		return "", fmt.Errorf("marshal initial state: %w", err)
	}
	return s, nil
}

func unmarshalInitialState(data string) (ir.InitialState, error) {
	var initial ir.InitialState
	if err := json.Unmarshal([]byte(data), &initial); err != nil {
		return ir.InitialState{}, fmt.Errorf("unmarshal initial state: %w", err)
	}
	return initial, nil
}

func marshalClipboard(ops []ir.Operation) (string, error) {
	if ops == nil {
		ops = []ir.Operation{}
	}
	s, err := marshalJSON(ops)
	if err != nil {
		return "", fmt.Errorf("marshal clipboard: %w", err)
	}
	return s, nil
}

func unmarshalClipboard(data string) ([]ir.Operation, error) {
	ops := []ir.Operation{}
	if data == "" {
		return ops, nil
	}
	if err := json.Unmarshal([]byte(data), &ops); err != nil {
		return nil, fmt.Errorf("unmarshal clipboard: %w", err)
	}
	return ops, nil
}

// marshalAttachmentRefs keeps only the hashes; the content lives in the
// attachments table.
func marshalAttachmentRefs(inputs []ir.AttachmentInput) (string, error) {
	hashes := make([]string, len(inputs))
	for i, in := range inputs {
		hashes[i] = in.Hash
	}
	return marshalJSON(hashes)
}

func unmarshalAttachmentRefs(data string) ([]string, error) {
	var hashes []string
	if data == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(data), &hashes); err != nil {
		return nil, fmt.Errorf("unmarshal attachment refs: %w", err)
	}
	return hashes, nil
}

func marshalMeta(meta ir.Object) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	return marshalValue(meta)
}

func unmarshalMeta(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return obj, nil
}
