package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/testutil"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEngine returns a counter engine with deterministic time and IDs.
func createTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return doctype.Counter().NewEngine(
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// createTestDocument dispatches actions onto a fresh counter document.
func createTestDocument(t *testing.T, e *engine.Engine, actions ...ir.Action) *ir.Document {
	t.Helper()
	doc := doctype.Counter().NewDocument(e, "test")
	for _, a := range actions {
		next, err := e.Dispatch(doc, a)
		if err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", a.Type, err)
		}
		doc = next
	}
	return doc
}
