package credentials

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-memory Store useful for tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Put(orgID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[orgID] = rec
}

func (s *MemoryStore) OrganizationRecord(ctx context.Context, orgID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[orgID]
	if !ok {
		return Record{}, errors.New("credentials: organization not found")
	}
	return rec, nil
}
