package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, int64(1), clock.Ticks())
}

func TestDeterministicClock_AdvancesByStep(t *testing.T) {
	clock := NewDeterministicClockAt(Epoch, time.Millisecond)

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, time.Millisecond, second.Sub(first))
	assert.Equal(t, time.Millisecond, third.Sub(second))
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Now()

	clock.Reset()

	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Ticks())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("")
	assert.Equal(t, "op-0001", ids.Generate())
	assert.Equal(t, "op-0002", ids.Generate())

	custom := NewSequentialIDs("doc")
	assert.Equal(t, "doc-0001", custom.Generate())
}
