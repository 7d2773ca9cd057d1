package envport

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new aggregates, events and
// correlation tokens. Production uses UUIDGenerator; tests use
// SequentialGenerator for reproducible stream ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator wraps google/uuid.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String() }

// StreamID builds the "<aggregate>-<uuid>" convention.
func (UUIDGenerator) StreamID(aggregate string) string {
	return fmt.Sprintf("%s-%s", aggregate, uuid.New().String())
}

// SequentialGenerator produces "<prefix>-<n>" ids, deterministic for tests.
type SequentialGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequentialGenerator) NewID() string {
	n := g.n.Add(1)
	return fmt.Sprintf("%s-%d", g.Prefix, n)
}
