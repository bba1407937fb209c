package credentials

import (
	"context"
	"errors"
)

// Credentials are the resolved calling-provider keys for one organization.
//
// PublicKey signs inbound webhooks (HMAC); PrivateKey authenticates outbound
// API calls to the provider.
type Credentials struct {
	PublicKey  string
	PrivateKey string
	WebhookURL string
}

// ErrNotConfigured means the organization has no usable provider credentials.
// Every failure mode of resolution collapses into this error: callers must
// treat it as "skip webhook processing for this tenant", never as fatal.
var ErrNotConfigured = errors.New("credentials: organization not configured")

// Record is the raw organization row as stored. Three generations of
// credential storage coexist: dedicated columns, a nested settings object,
// and a legacy JSON-string column.
type Record struct {
	VapiPublicKey  string
	VapiAPIKey     string
	VapiPrivateKey string
	VapiWebhookURL string

	// Settings is the organizations.settings jsonb column.
	Settings []byte

	// VapiSettings is the legacy vapi_settings column, a JSON string.
	VapiSettings string
}

// Store reads organization rows.
type Store interface {
	OrganizationRecord(ctx context.Context, orgID string) (Record, error)
}
