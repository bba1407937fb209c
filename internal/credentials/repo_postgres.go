package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NOTE: This repository assumes an organizations table with columns:
// id, vapi_public_key, vapi_api_key, vapi_private_key, vapi_webhook_url,
// settings (jsonb), vapi_settings (text). Credential columns are read-only
// from this service; tenant settings management owns the writes.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) OrganizationRecord(ctx context.Context, orgID string) (Record, error) {
	const q = `
SELECT COALESCE(vapi_public_key, ''),
       COALESCE(vapi_api_key, ''),
       COALESCE(vapi_private_key, ''),
       COALESCE(vapi_webhook_url, ''),
       COALESCE(settings, '{}'),
       COALESCE(vapi_settings, '')
FROM organizations
WHERE id = $1
`
	var rec Record
	err := s.db.QueryRowContext(ctx, q, orgID).Scan(
		&rec.VapiPublicKey,
		&rec.VapiAPIKey,
		&rec.VapiPrivateKey,
		&rec.VapiWebhookURL,
		&rec.Settings,
		&rec.VapiSettings,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("credentials: organization %s not found", orgID)
		}
		return Record{}, fmt.Errorf("credentials: organization read: %w", err)
	}
	return rec, nil
}
