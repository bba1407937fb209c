package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NOTE: This repository assumes a webhook_logs table:
// id PK, event_id, type, event_type, call_id, organization_id, payload, error, created_at.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO webhook_logs (
  id, event_id, type, event_type, call_id, organization_id, payload, error, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.EventID,
		e.Type,
		e.EventType,
		e.CallID,
		e.OrganizationID,
		e.Payload,
		e.Error,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, event_id, type, event_type, call_id, organization_id, payload, error, created_at
FROM webhook_logs
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("auditlog: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.Type,
			&e.EventType,
			&e.CallID,
			&e.OrganizationID,
			&e.Payload,
			&e.Error,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Entry, error) {
	const q = `
SELECT id, event_id, type, event_type, call_id, organization_id, payload, error, created_at
FROM webhook_logs
WHERE id = $1
`
	var e Entry
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID,
		&e.EventID,
		&e.Type,
		&e.EventType,
		&e.CallID,
		&e.OrganizationID,
		&e.Payload,
		&e.Error,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("auditlog: get: %w", err)
	}
	return e, nil
}
