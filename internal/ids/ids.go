// Package ids allocates entity identities. Identities are never reused.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Allocator hands out unique identifiers with a short type prefix.
type Allocator interface {
	Next(prefix string) string
}

type uuidAllocator struct{}

// NewUUID returns an allocator backed by random UUIDs.
func NewUUID() Allocator { return uuidAllocator{} }

func (uuidAllocator) Next(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// Sequential issues prefix-scoped counters ("veh_1", "veh_2", ...).
// Deterministic, for tests and reproducible runs.
type Sequential struct {
	mu   sync.Mutex
	next map[string]uint64
}

// NewSequential creates a counter-based allocator.
func NewSequential() *Sequential {
	return &Sequential{next: make(map[string]uint64)}
}

// Next returns the next identifier for prefix.
func (s *Sequential) Next(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[prefix]++
	return fmt.Sprintf("%s_%d", prefix, s.next[prefix])
}
