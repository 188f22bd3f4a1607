// Package doctype maps document type names to the reducer and initial
// state the engine needs to operate on them.
package doctype

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
)

// Model describes one document type.
type Model struct {
	// Type is the document type name stored in the header.
	Type string

	// Reducer is the type's state transition.
	Reducer engine.Reducer

	// InitialState returns a fresh snapshot for new documents.
	InitialState func() ir.InitialState

	// Actions lists the custom action types the reducer understands.
	Actions []string
}

// Registry is a concurrency-safe set of document models.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates a registry holding models.
// Panics on duplicate types: registration happens at startup.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// Default returns a registry with the built-in models.
func Default() *Registry {
	return NewRegistry(Counter())
}

// Register adds a model. Registering the same type twice is an error.
func (r *Registry) Register(m Model) error {
	if m.Type == "" {
		return fmt.Errorf("document model has no type")
	}
	if m.Reducer == nil {
		return fmt.Errorf("document model %q has no reducer", m.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[m.Type]; ok {
		return fmt.Errorf("document model %q already registered", m.Type)
	}
	r.models[m.Type] = m
	return nil
}

// Get returns the model for a document type.
func (r *Registry) Get(docType string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[docType]
	if !ok {
		return Model{}, fmt.Errorf("unknown document type %q", docType)
	}
	return m, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.models))
	for t := range r.models {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// NewEngine builds an engine for the model's reducer.
func (m Model) NewEngine(opts ...engine.EngineOption) *engine.Engine {
	return engine.New(m.Reducer, opts...)
}

// NewDocument creates a document of this type with the given name.
func (m Model) NewDocument(e *engine.Engine, name string) *ir.Document {
	initial := m.InitialState()
	initial.DocumentType = m.Type
	initial.Name = name
	return e.CreateDocument(initial)
}
