package engine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces op ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 op ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// dispatch time in logs and in the journal.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator yields "op-1", "op-2", ... Useful for demos and traces
// where readable ids matter more than global uniqueness.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Int64
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "op-"
	}
	return prefix + strconv.FormatInt(g.n.Add(1), 10)
}

// FixedGenerator returns predetermined op ids for testing.
//
// This enables deterministic test execution and golden trace comparison.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("op-a", "op-b")
//	gen.Generate() // "op-a"
//	gen.Generate() // "op-b"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed. A test that dispatches more intents
// than it planned for should fail loudly.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
