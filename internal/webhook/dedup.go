package webhook

import (
	"context"
	"sync"
)

// Deduplicator tracks processed event ids.
//
// This is an at-most-once-per-instance guarantee, not a durable one: the
// memory implementation forgets everything on restart, and the redis
// implementation forgets after its TTL. The provider redelivers on slow
// acks, so this is the single piece of shared mutable state the pipeline
// synchronizes on.
type Deduplicator interface {
	// Seen marks the id processed and reports whether it already was.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Size reports how many ids are currently tracked, for the status
	// endpoint.
	Size(ctx context.Context) (int64, error)
}

// MemoryDeduplicator is a mutex-guarded process-local set. Suitable for
// single-instance deployments; it grows for the lifetime of the process.
type MemoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{seen: make(map[string]struct{})}
}

func (d *MemoryDeduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return true, nil
	}
	d.seen[eventID] = struct{}{}
	return false, nil
}

func (d *MemoryDeduplicator) Size(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen)), nil
}
