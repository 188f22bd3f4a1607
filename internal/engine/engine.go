package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/docreduce/internal/ir"
)

// Signal is a side request a reducer can raise while handling an action,
// for example asking the host to create a child document. The engine only
// forwards signals; it never interprets them.
type Signal struct {
	Type  string
	Input ir.Value
}

// SignalDispatch receives reducer signals.
type SignalDispatch func(Signal)

// Reducer is a document type's state transition for one scope.
//
// The state argument is a private working copy: the reducer may mutate it
// and return nil, or return a fresh object. Returning an error records the
// failure on the operation instead of aborting the dispatch.
type Reducer func(state ir.Object, action ir.Action, dispatch SignalDispatch) (ir.Object, error)

// ActionValidator checks base action payloads.
// Implemented by schema.Validator.
type ActionValidator interface {
	Validate(action ir.Action) error
}

// Engine applies actions and operations to documents.
//
// An Engine holds no document state; one Engine may serve any number of
// documents of the same type from concurrent goroutines, provided the
// injected Clock, IDGenerator and ActionValidator are themselves safe for
// concurrent use.
type Engine struct {
	reducer   Reducer
	clock     Clock
	ids       IDGenerator
	hasher    ir.Hasher
	validator ActionValidator
	logger    *slog.Logger
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithClock sets the time source for operation timestamps.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the operation ID source.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithHasher sets the state hash algorithm.
//
// Default: ir.SHA1Base64
func WithHasher(h ir.Hasher) EngineOption {
	return func(e *Engine) {
		e.hasher = h
	}
}

// WithValidator sets the base action validator. Without one, base action
// payloads are only checked structurally by their handlers.
func WithValidator(v ActionValidator) EngineOption {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine for the given reducer.
func New(reducer Reducer, opts ...EngineOption) *Engine {
	if reducer == nil {
		reducer = func(state ir.Object, _ ir.Action, _ SignalDispatch) (ir.Object, error) {
			return state, nil
		}
	}
	e := &Engine{
		reducer: reducer,
		clock:   SystemClock{},
		ids:     UUIDv7Generator{},
		hasher:  ir.SHA1Base64{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hasher returns the engine's state hasher.
func (e *Engine) Hasher() ir.Hasher {
	return e.hasher
}

// Now returns the current timestamp string from the engine clock.
func (e *Engine) Now() string {
	return ir.FormatTimestamp(e.clock.Now())
}

// CreateDocument builds a new document from an initial snapshot. Created
// and LastModified default to the engine clock.
func (e *Engine) CreateDocument(initial ir.InitialState) *ir.Document {
	if initial.Created == "" {
		initial.Created = e.Now()
	}
	if initial.LastModified == "" {
		initial.LastModified = initial.Created
	}
	return ir.NewDocument(initial)
}

// dispatchConfig collects per-call options.
type dispatchConfig struct {
	skip           int
	ignoreSkip     bool
	reuseHash      bool
	reuseTimestamp bool
	memoize        bool
	signal         SignalDispatch
}

// DispatchOption configures a single Dispatch or ApplyOperation call.
type DispatchOption func(*dispatchConfig)

// WithSkip marks the dispatched operation as voiding the n operations
// before it. The scope state is rebuilt from the collapsed view before the
// reducer runs.
func WithSkip(n int) DispatchOption {
	return func(c *dispatchConfig) {
		c.skip = n
	}
}

// IgnoreSkipOperations appends the operation without resolving its skip and
// leaves the clipboard untouched. Replay uses it to fold an already
// collapsed view.
func IgnoreSkipOperations() DispatchOption {
	return func(c *dispatchConfig) {
		c.ignoreSkip = true
	}
}

// ReuseHash keeps the hash an inbound operation already carries.
func ReuseHash() DispatchOption {
	return func(c *dispatchConfig) {
		c.reuseHash = true
	}
}

// ReuseTimestamp keeps the timestamp an inbound operation already carries.
func ReuseTimestamp() DispatchOption {
	return func(c *dispatchConfig) {
		c.reuseTimestamp = true
	}
}

// MemoizeState stores the resulting scope state on the operation so later
// replays can resume from it.
func MemoizeState() DispatchOption {
	return func(c *dispatchConfig) {
		c.memoize = true
	}
}

// WithSignalDispatch forwards reducer signals to fn.
func WithSignalDispatch(fn SignalDispatch) DispatchOption {
	return func(c *dispatchConfig) {
		c.signal = fn
	}
}

func newDispatchConfig(opts []DispatchOption) dispatchConfig {
	cfg := dispatchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.signal == nil {
		cfg.signal = func(Signal) {}
	}
	return cfg
}

// runReducer invokes the document reducer on a working copy and converts
// panics into errors so a misbehaving reducer is recorded like any other
// failure.
func (e *Engine) runReducer(state ir.Object, action ir.Action, signal SignalDispatch) (result ir.Object, err error) {
	working := state.Clone()
	if working == nil {
		working = ir.Object{}
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("reducer panic: %v", r)
		}
	}()
	out, err := e.reducer(working, action.Clone(), signal)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return working, nil
	}
	return out, nil
}
