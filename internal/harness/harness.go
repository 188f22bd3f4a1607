package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/schema"
	"github.com/roach88/docreduce/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and sequential IDs.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialIDs
	logger *slog.Logger
}

type runConfig struct {
	registry *doctype.Registry
	logger   *slog.Logger
}

// Option configures a scenario run.
type Option func(*runConfig)

// WithRegistry sets the document models scenarios can use.
//
// Default: doctype.Default()
func WithRegistry(r *doctype.Registry) Option {
	return func(c *runConfig) {
		c.registry = r
	}
}

// WithLogger sets the engine logger.
//
// Default: discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario gets a fresh engine and document. Execution stops at the
// first step that fails unexpectedly; assertions only run when every step
// behaved as expected. The returned error covers setup problems such as
// an unknown document type; scenario failures are reported on the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		registry: doctype.Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	model, err := cfg.registry.Get(scenario.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}
	h, err := newHarness(model, cfg.logger)
	if err != nil {
		return nil, err
	}

	doc, err := h.newDocument(model, scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Document = doc
	if !h.executeSteps(scenario.Steps, result) {
		return result, nil
	}

	actx := &AssertionContext{
		Ctx:        context.Background(),
		Engine:     h.engine,
		DocumentID: scenario.Name,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// newHarness wires a deterministic engine for model.
func newHarness(model doctype.Model, logger *slog.Logger) (*Harness, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("load action schema: %w", err)
	}

	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialIDs("op"),
		logger: logger,
	}
	h.engine = model.NewEngine(
		engine.WithClock(h.clock),
		engine.WithIDGenerator(h.ids),
		engine.WithValidator(validator),
		engine.WithLogger(h.logger),
	)
	return h, nil
}

// newDocument creates the scenario document, applying initial state
// overrides on top of the model's initial state.
func (h *Harness) newDocument(model doctype.Model, scenario *Scenario) (*ir.Document, error) {
	initial := model.InitialState()
	initial.DocumentType = model.Type
	initial.Name = scenario.DocumentName
	for scope, fields := range scenario.InitialState {
		v, err := ir.FromGo(map[string]any(fields))
		if err != nil {
			return nil, fmt.Errorf("initial_state.%s: %w", scope, err)
		}
		if initial.State == nil {
			initial.State = make(map[ir.Scope]ir.Object)
		}
		initial.State[ir.Scope(scope)] = v.(ir.Object)
	}
	return h.engine.CreateDocument(initial), nil
}

// executeSteps runs steps in order, recording one trace event per
// dispatch. Returns false when a step failed unexpectedly.
func (h *Harness) executeSteps(steps []Step, result *Result) bool {
	for i, step := range steps {
		for range step.Repeat {
			next, err := h.executeStep(result.Document, step)
			if !h.record(i, step, next, err, result) {
				return false
			}
		}
	}
	return true
}

func (h *Harness) executeStep(doc *ir.Document, step Step) (*ir.Document, error) {
	if step.Operation != nil {
		op, err := step.Operation.operation()
		if err != nil {
			return nil, err
		}
		return h.engine.ApplyOperation(doc, op)
	}

	action, err := step.action()
	if err != nil {
		return nil, err
	}
	var opts []engine.DispatchOption
	if step.Skip > 0 {
		opts = append(opts, engine.WithSkip(step.Skip))
	}
	if step.IgnoreSkip {
		opts = append(opts, engine.IgnoreSkipOperations())
	}
	if step.Memoize {
		opts = append(opts, engine.MemoizeState())
	}
	return h.engine.Dispatch(doc, action, opts...)
}

// record checks a step outcome against its expectation and appends the
// trace event.
func (h *Harness) record(i int, step Step, next *ir.Document, err error, result *Result) bool {
	scope := step.scope()
	label := step.label()

	if err != nil {
		code := string(engine.CodeOf(err))
		if code == "" {
			code = "ERROR"
		}
		result.addRejected(i, label, scope, code)
		if step.ExpectError == "" {
			result.AddError(fmt.Sprintf("step[%d] %s: %v", i, label, err))
			return false
		}
		if step.ExpectError != code {
			result.AddError(fmt.Sprintf("step[%d] %s: expected error %s, got %v", i, label, step.ExpectError, err))
			return false
		}
		return true
	}

	result.Document = next
	result.addApplied(i, label, next, scope)
	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("step[%d] %s: expected error %s, got success", i, label, step.ExpectError))
		return false
	}
	return true
}
