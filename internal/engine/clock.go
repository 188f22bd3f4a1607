package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time for operation timestamps.
// Implemented by SystemClock (production) and testutil.DeterministicClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// IDGenerator produces operation IDs. IDs identify an operation
// independently of its position in the log.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is safe for concurrent use. The
// underlying uuid.NewV7() function uses internal synchronization.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
// Panics if the random source fails, which only happens when the system
// is in an unrecoverable state.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs for testing.
// After the list is exhausted it falls back to "op-N" with a running
// counter, so long scenarios need not enumerate every ID.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.idx
	g.idx++
	if n < len(g.ids) {
		return g.ids[n]
	}
	return fmt.Sprintf("op-%d", n)
}
