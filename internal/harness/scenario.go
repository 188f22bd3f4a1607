package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/ir"
)

// Scenario defines a conformance test scenario: a sequence of steps
// against a fresh document and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// DocumentType selects the document model.
	// Default: docreduce/counter
	DocumentType string `yaml:"document_type,omitempty"`

	// DocumentName is the name the document is created with.
	DocumentName string `yaml:"document_name,omitempty"`

	// InitialState overrides the model's initial state per scope.
	InitialState map[string]map[string]any `yaml:"initial_state,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final document.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is either a dispatched action or an operation applied at an
// explicit index.
type Step struct {
	// Action is the action type to dispatch.
	Action string `yaml:"action,omitempty"`

	// Input is the action payload. A missing input dispatches {}.
	Input any `yaml:"input,omitempty"`

	// Scope defaults to global.
	Scope string `yaml:"scope,omitempty"`

	// Skip dispatches with a pending skip.
	Skip int `yaml:"skip,omitempty"`

	// IgnoreSkip appends without resolving the skip or clearing the
	// redo clipboard.
	IgnoreSkip bool `yaml:"ignore_skip,omitempty"`

	// Memoize stores the resulting scope state on the operation.
	Memoize bool `yaml:"memoize,omitempty"`

	// Repeat dispatches the action this many times.
	// Default: 1
	Repeat int `yaml:"repeat,omitempty"`

	// Operation applies a pre-built operation instead of an action.
	Operation *OperationStep `yaml:"operation,omitempty"`

	// ExpectError is the engine error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// OperationStep is an operation received from another log.
type OperationStep struct {
	Type  string `yaml:"type"`
	Input any    `yaml:"input,omitempty"`
	Scope string `yaml:"scope,omitempty"`
	Index int    `yaml:"index"`
	Skip  int    `yaml:"skip,omitempty"`
}

// Assertion validates the final document.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Scope defaults to global for scoped assertions.
	Scope string `yaml:"scope,omitempty"`

	// Expect is the expected value; its shape depends on Type.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertState               = "state"
	AssertName                = "name"
	AssertRevision            = "revision"
	AssertLogLength           = "log_length"
	AssertTail                = "tail"
	AssertClipboard           = "clipboard"
	AssertDeterministicReplay = "deterministic_replay"
	AssertStoreRoundTrip      = "store_roundtrip"
)

var assertionTypes = []string{
	AssertState,
	AssertName,
	AssertRevision,
	AssertLogLength,
	AssertTail,
	AssertClipboard,
	AssertDeterministicReplay,
	AssertStoreRoundTrip,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML and fills in defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	applyDefaults(&scenario)
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", s.Name, prev, path)
		}
		seen[s.Name] = path
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("missing required field: name")
	}
	if len(s.Steps) == 0 {
		return errors.New("missing required field: steps (must have at least one step)")
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch {
	case step.Action == "" && step.Operation == nil:
		return errors.New("one of action or operation is required")
	case step.Action != "" && step.Operation != nil:
		return errors.New("action and operation are mutually exclusive")
	case step.Repeat < 0:
		return fmt.Errorf("repeat must not be negative, got %d", step.Repeat)
	case step.Skip < 0:
		return fmt.Errorf("skip must not be negative, got %d", step.Skip)
	}
	if op := step.Operation; op != nil {
		if op.Type == "" {
			return errors.New("operation: missing required field: type")
		}
		if op.Index < 0 || op.Skip < 0 {
			return errors.New("operation: index and skip must not be negative")
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if !slices.Contains(assertionTypes, a.Type) {
		return fmt.Errorf("invalid assertion type %q (valid: %v)", a.Type, assertionTypes)
	}
	switch a.Type {
	case AssertDeterministicReplay, AssertStoreRoundTrip:
		return nil
	}
	if a.Expect == nil {
		return fmt.Errorf("%s assertion requires 'expect' field", a.Type)
	}
	return nil
}

func applyDefaults(s *Scenario) {
	if s.DocumentType == "" {
		s.DocumentType = doctype.CounterType
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Scope == "" {
			step.Scope = string(ir.ScopeGlobal)
		}
		if step.Repeat == 0 {
			step.Repeat = 1
		}
		if step.Operation != nil && step.Operation.Scope == "" {
			step.Operation.Scope = string(ir.ScopeGlobal)
		}
	}
	for i := range s.Assertions {
		if s.Assertions[i].Scope == "" {
			s.Assertions[i].Scope = string(ir.ScopeGlobal)
		}
	}
}

// action builds the ir.Action for a step.
func (s Step) action() (ir.Action, error) {
	input, err := toValue(s.Input)
	if err != nil {
		return ir.Action{}, fmt.Errorf("input: %w", err)
	}
	return ir.NewAction(s.Action, input, ir.Scope(s.Scope)), nil
}

// operation builds the ir.Operation for an operation step.
func (o OperationStep) operation() (ir.Operation, error) {
	input, err := toValue(o.Input)
	if err != nil {
		return ir.Operation{}, fmt.Errorf("input: %w", err)
	}
	return ir.Operation{
		Action: ir.NewAction(o.Type, input, ir.Scope(o.Scope)),
		Index:  o.Index,
		Skip:   o.Skip,
	}, nil
}

// label names a step in traces.
func (s Step) label() string {
	if s.Operation != nil {
		return s.Operation.Type
	}
	return s.Action
}

func (s Step) scope() ir.Scope {
	if s.Operation != nil {
		return ir.Scope(s.Operation.Scope)
	}
	return ir.Scope(s.Scope)
}

func toValue(v any) (ir.Value, error) {
	if v == nil {
		return ir.Object{}, nil
	}
	return ir.FromGo(v)
}
