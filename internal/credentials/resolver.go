package credentials

import (
	"context"
	"encoding/json"
	"log/slog"
)

// source extracts a candidate credential set from one storage generation.
// disabled is only meaningful for the legacy blob, which carries an enabled
// flag that kills the whole organization when false.
type source func(Record) (c Credentials, disabled bool)

// Resolution order. First non-empty value wins per field, so a tenant that
// has migrated the private key to a dedicated column but still keeps the
// webhook URL in the legacy blob resolves both.
var sources = []source{
	fromColumns,
	fromSettings,
	fromLegacyBlob,
}

type Resolver struct {
	store Store
	log   *slog.Logger
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

// Resolve returns the organization's provider credentials or ErrNotConfigured.
// It never returns any other error: underlying read failures are logged and
// reported as not-configured so a credential-store outage degrades to skipped
// webhooks, not crashed processing.
func (r *Resolver) Resolve(ctx context.Context, orgID string) (Credentials, error) {
	if orgID == "" || r.store == nil {
		return Credentials{}, ErrNotConfigured
	}

	rec, err := r.store.OrganizationRecord(ctx, orgID)
	if err != nil {
		r.log.Warn("credential read failed", "organization_id", orgID, "err", err)
		return Credentials{}, ErrNotConfigured
	}

	var merged Credentials
	for _, src := range sources {
		c, disabled := src(rec)
		if disabled {
			return Credentials{}, ErrNotConfigured
		}
		if merged.PublicKey == "" {
			merged.PublicKey = c.PublicKey
		}
		if merged.PrivateKey == "" {
			merged.PrivateKey = c.PrivateKey
		}
		if merged.WebhookURL == "" {
			merged.WebhookURL = c.WebhookURL
		}
	}

	if merged.PrivateKey == "" {
		return Credentials{}, ErrNotConfigured
	}
	return merged, nil
}

func fromColumns(rec Record) (Credentials, bool) {
	pub := rec.VapiPublicKey
	if pub == "" {
		pub = rec.VapiAPIKey
	}
	return Credentials{
		PublicKey:  pub,
		PrivateKey: rec.VapiPrivateKey,
		WebhookURL: rec.VapiWebhookURL,
	}, false
}

// settingsDoc is the shape of organizations.settings.
type settingsDoc struct {
	Vapi *vapiSettings `json:"vapi"`
}

type vapiSettings struct {
	PublicKey  string `json:"publicKey"`
	APIKey     string `json:"apiKey"`
	PrivateKey string `json:"privateKey"`
	WebhookURL string `json:"webhookUrl"`
	Enabled    *bool  `json:"enabled"`
}

func (s vapiSettings) credentials() Credentials {
	pub := s.PublicKey
	if pub == "" {
		pub = s.APIKey
	}
	return Credentials{PublicKey: pub, PrivateKey: s.PrivateKey, WebhookURL: s.WebhookURL}
}

func fromSettings(rec Record) (Credentials, bool) {
	if len(rec.Settings) == 0 {
		return Credentials{}, false
	}
	var doc settingsDoc
	if err := json.Unmarshal(rec.Settings, &doc); err != nil || doc.Vapi == nil {
		return Credentials{}, false
	}
	return doc.Vapi.credentials(), false
}

// fromLegacyBlob parses the vapi_settings column. Unlike the other sources it
// can veto resolution outright: enabled:false disables the integration even
// when keys are present elsewhere.
func fromLegacyBlob(rec Record) (Credentials, bool) {
	if rec.VapiSettings == "" {
		return Credentials{}, false
	}
	var s vapiSettings
	if err := json.Unmarshal([]byte(rec.VapiSettings), &s); err != nil {
		return Credentials{}, false
	}
	if s.Enabled != nil && !*s.Enabled {
		return Credentials{}, true
	}
	return s.credentials(), false
}
