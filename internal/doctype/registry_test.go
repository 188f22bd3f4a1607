package doctype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/testutil"
)

func TestRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{CounterType}, r.Types())

	m, err := r.Get(CounterType)
	require.NoError(t, err)
	assert.Equal(t, CounterType, m.Type)

	_, err = r.Get("nope")
	assert.Error(t, err)

	assert.Error(t, r.Register(Counter()), "duplicate registration")
	assert.Error(t, r.Register(Model{Type: "x"}), "missing reducer")
	assert.Error(t, r.Register(Model{}), "missing type")
}

func TestNewRegistryPanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() { NewRegistry(Counter(), Counter()) })
}

func newCounter(t *testing.T) (*engine.Engine, *ir.Document) {
	t.Helper()
	m := Counter()
	e := m.NewEngine(
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("")),
	)
	return e, m.NewDocument(e, "counter")
}

func TestCounterReducer(t *testing.T) {
	e, doc := newCounter(t)
	assert.Equal(t, CounterType, doc.DocumentType)
	assert.Equal(t, "counter", doc.Name)

	var err error
	for _, a := range []ir.Action{Increment(), IncrementBy(5), Decrement(), SetLocalName("mine")} {
		doc, err = e.Dispatch(doc, a)
		require.NoError(t, err)
	}

	assert.Equal(t, ir.Int(5), doc.State[ir.ScopeGlobal]["count"])
	assert.Equal(t, ir.String("mine"), doc.State[ir.ScopeLocal]["name"])
	assert.Len(t, doc.Operations[ir.ScopeGlobal], 3)
	assert.Len(t, doc.Operations[ir.ScopeLocal], 1)
}

func TestCounterFailIsRecorded(t *testing.T) {
	e, doc := newCounter(t)

	doc, err := e.Dispatch(doc, Fail("boom"))
	require.NoError(t, err)

	op := doc.Operations[ir.ScopeGlobal][0]
	assert.Equal(t, "forced failure: boom", op.Error)
	assert.Empty(t, op.Hash)
	assert.Equal(t, ir.Int(0), doc.State[ir.ScopeGlobal]["count"])
}

func TestCounterReducerErrors(t *testing.T) {
	_, err := counterReducer(ir.Object{}, ir.NewAction("UNKNOWN", nil, ir.ScopeGlobal), nil)
	assert.Error(t, err)

	_, err = counterReducer(ir.Object{}, Fail(""), nil)
	assert.True(t, errors.Is(err, ErrForcedFailure))

	_, err = counterReducer(ir.Object{}, ir.NewAction(ActionSetLocalName, ir.Int(1), ir.ScopeLocal), nil)
	assert.Error(t, err)
}
