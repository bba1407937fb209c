package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	rows  map[string]*Call  // keyed by internal id
	Phone map[string]string // number -> organization id

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rows:  make(map[string]*Call),
		Phone: make(map[string]string),
		clock: time.Now,
	}
}

func (r *MemoryRepo) find(ref string) *Call {
	if c, ok := r.rows[ref]; ok {
		return c
	}
	for _, c := range r.rows {
		if c.VapiCallID == ref {
			return c
		}
	}
	return nil
}

func (r *MemoryRepo) UpsertByProviderID(ctx context.Context, providerCallID string, p Patch) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	c := r.find(providerCallID)
	if c == nil {
		c = &Call{
			ID:         uuid.NewString(),
			VapiCallID: providerCallID,
			Status:     CallStatusQueued,
			CreatedAt:  now,
		}
		r.rows[c.ID] = c
	}
	p.apply(c)
	c.UpdatedAt = now
	return *c, nil
}

func (r *MemoryRepo) UpdateByRef(ctx context.Context, ref string, p Patch) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(ref)
	if c == nil {
		return Call{}, ErrNotFound
	}
	p.apply(c)
	c.UpdatedAt = r.clock().UTC()
	return *c, nil
}

func (r *MemoryRepo) GetByRef(ctx context.Context, ref string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(ref)
	if c == nil {
		return Call{}, ErrNotFound
	}
	return *c, nil
}

func (r *MemoryRepo) OrganizationForProviderCall(ctx context.Context, providerCallID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(providerCallID)
	if c == nil || c.OrganizationID == "" {
		return "", ErrNotFound
	}
	return c.OrganizationID, nil
}

func (r *MemoryRepo) OrganizationForPhoneNumber(ctx context.Context, number string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if org, ok := r.Phone[number]; ok {
		return org, nil
	}
	return "", ErrNotFound
}
