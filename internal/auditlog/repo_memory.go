package auditlog

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests
// and single-process local runs.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry

	// FailAppend forces Append errors, for exercising best-effort paths.
	FailAppend error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend != nil {
		return r.FailAppend
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	n := len(r.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Entries returns a copy of everything appended so far.
func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
