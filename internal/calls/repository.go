package calls

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("calls: not found")

// Store is the persistence contract for call records.
//
// Ref parameters accept either the provider call id or the internal id;
// implementations must match on both (inclusive or).
type Store interface {
	// UpsertByProviderID creates the call row if it does not exist, then
	// applies the patch. Used by call-started, which may arrive before any
	// dashboard-side creation.
	UpsertByProviderID(ctx context.Context, providerCallID string, p Patch) (Call, error)

	// UpdateByRef applies a partial update to an existing row.
	// Returns ErrNotFound when no row matches.
	UpdateByRef(ctx context.Context, ref string, p Patch) (Call, error)

	GetByRef(ctx context.Context, ref string) (Call, error)

	// OrganizationForProviderCall resolves the owning tenant of a known call.
	// Returns ErrNotFound when the call is unknown.
	OrganizationForProviderCall(ctx context.Context, providerCallID string) (string, error)

	// OrganizationForPhoneNumber resolves a tenant by one of its numbers.
	OrganizationForPhoneNumber(ctx context.Context, number string) (string, error)
}
