package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/schema"
	"github.com/roach88/docreduce/internal/store"
)

// session bundles the store and the engine of one stored document.
type session struct {
	store   *store.Store
	engine  *engine.Engine
	summary store.DocumentSummary
}

func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.database())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// newEngine builds an engine for model with the configured hasher.
func (o *RootOptions) newEngine(model doctype.Model) (*engine.Engine, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("load action schema: %w", err)
	}
	return model.NewEngine(
		engine.WithHasher(o.config().Hasher()),
		engine.WithValidator(validator),
		engine.WithLogger(o.logger()),
	), nil
}

// engineFor resolves the document type of a stored document.
func (o *RootOptions) engineFor(ctx context.Context, st *store.Store, id string) (*engine.Engine, store.DocumentSummary, error) {
	sum, err := st.ReadSummary(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, sum, NewExitError(ExitCommandError, fmt.Sprintf("document not found: %s", id))
		}
		return nil, sum, WrapExitError(ExitCommandError, "failed to read document", err)
	}
	model, err := o.registry().Get(sum.DocumentType)
	if err != nil {
		return nil, sum, WrapExitError(ExitCommandError, "unsupported document", err)
	}
	e, err := o.newEngine(model)
	if err != nil {
		return nil, sum, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return e, sum, nil
}

// openDocument opens the store and the engine for a stored document.
// The caller closes s.store.
func (o *RootOptions) openDocument(ctx context.Context, id string) (*session, error) {
	st, err := o.openStore()
	if err != nil {
		return nil, err
	}
	e, sum, err := o.engineFor(ctx, st, id)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &session{store: st, engine: e, summary: sum}, nil
}

// load rebuilds the document, resuming from memoized states when asked.
func (s *session) load(ctx context.Context, memoized bool) (*ir.Document, error) {
	doc, err := s.store.LoadDocument(ctx, s.summary.ID, s.engine, engine.ReplayOptions{UseResultingState: memoized})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load document", err)
	}
	return doc, nil
}

// parseInput decodes a JSON action payload. Empty input means {}.
func parseInput(raw string) (ir.Value, error) {
	if raw == "" {
		return ir.Object{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --input JSON", err)
	}
	return v, nil
}
