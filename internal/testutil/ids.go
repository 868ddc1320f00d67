package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// SequentialIDs generates predictable UUIDs 00000000-0000-7000-8000-00000000000N.
//
// Used in place of attach.UUIDv7Generator so journals and golden traces
// written by tests are byte-identical across runs. The version and variant
// bits are set so the values parse as UUIDv7.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialIDs creates a generator whose first ID ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// NewID returns the next ID.
func (g *SequentialIDs) NewID() uuid.UUID {
	g.mu.Lock()
	g.next++
	n := g.next
	g.mu.Unlock()

	var id uuid.UUID
	id[6] = 0x70
	binary.BigEndian.PutUint64(id[8:], n)
	id[8] |= 0x80
	return id
}

// Reset restarts the sequence.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}
