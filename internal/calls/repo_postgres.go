package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
// - calls (id PK, vapi_call_id UNIQUE, organization_id, status, started_at/ended_at NULL,
//   remaining text/numeric columns NOT NULL with '' / 0 defaults)
// - phone_numbers (number UNIQUE, organization_id)

type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `
id, vapi_call_id, organization_id, phone_number, assistant_id, status,
started_at, ended_at, duration, cost, transcript, partial_transcript, summary,
sentiment, key_points, outcome, quality_score, raw_analysis,
recording_url, end_reason, raw_webhook, created_at, updated_at
`

func (r *PostgresRepo) UpsertByProviderID(ctx context.Context, providerCallID string, p Patch) (Call, error) {
	if providerCallID == "" {
		return Call{}, errors.New("calls: provider call id is required")
	}

	// Ensure the row exists first; a concurrent insert loses the conflict
	// and the subsequent update still lands on the surviving row.
	const ins = `
INSERT INTO calls (id, vapi_call_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (vapi_call_id) DO NOTHING
`
	now := r.clock().UTC()
	if _, err := r.db.ExecContext(ctx, ins, uuid.NewString(), providerCallID, CallStatusQueued, now); err != nil {
		return Call{}, fmt.Errorf("calls: upsert insert: %w", err)
	}
	return r.UpdateByRef(ctx, providerCallID, p)
}

func (r *PostgresRepo) UpdateByRef(ctx context.Context, ref string, p Patch) (Call, error) {
	if ref == "" {
		return Call{}, errors.New("calls: ref is required")
	}

	set, args := patchClauses(p)
	args = append(args, r.clock().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, ref)

	q := fmt.Sprintf(`
UPDATE calls SET %s
WHERE vapi_call_id = $%d OR id = $%d
RETURNING %s`, strings.Join(set, ", "), len(args), len(args), callColumns)

	c, err := scanCall(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, fmt.Errorf("calls: update: %w", err)
	}
	return c, nil
}

func (r *PostgresRepo) GetByRef(ctx context.Context, ref string) (Call, error) {
	q := fmt.Sprintf(`SELECT %s FROM calls WHERE vapi_call_id = $1 OR id = $1`, callColumns)
	c, err := scanCall(r.db.QueryRowContext(ctx, q, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, fmt.Errorf("calls: get: %w", err)
	}
	return c, nil
}

func (r *PostgresRepo) OrganizationForProviderCall(ctx context.Context, providerCallID string) (string, error) {
	const q = `SELECT organization_id FROM calls WHERE vapi_call_id = $1 OR id = $1`
	var orgID string
	if err := r.db.QueryRowContext(ctx, q, providerCallID).Scan(&orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("calls: org lookup: %w", err)
	}
	if orgID == "" {
		return "", ErrNotFound
	}
	return orgID, nil
}

func (r *PostgresRepo) OrganizationForPhoneNumber(ctx context.Context, number string) (string, error) {
	const q = `SELECT organization_id FROM phone_numbers WHERE number = $1 LIMIT 1`
	var orgID string
	if err := r.db.QueryRowContext(ctx, q, number).Scan(&orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("calls: phone number lookup: %w", err)
	}
	return orgID, nil
}

// patchClauses renders only the non-nil fields, so omitted event fields never
// overwrite stored values.
func patchClauses(p Patch) ([]string, []any) {
	var set []string
	var args []any

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.OrganizationID != nil {
		add("organization_id", *p.OrganizationID)
	}
	if p.PhoneNumber != nil {
		add("phone_number", *p.PhoneNumber)
	}
	if p.AssistantID != nil {
		add("assistant_id", *p.AssistantID)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.StartedAt != nil {
		add("started_at", p.StartedAt.UTC())
	}
	if p.EndedAt != nil {
		add("ended_at", p.EndedAt.UTC())
	}
	if p.DurationSeconds != nil {
		add("duration", *p.DurationSeconds)
	}
	if p.Cost != nil {
		add("cost", *p.Cost)
	}
	if p.Transcript != nil {
		add("transcript", *p.Transcript)
	}
	if p.PartialTranscript != nil {
		add("partial_transcript", *p.PartialTranscript)
	}
	if p.Summary != nil {
		add("summary", *p.Summary)
	}
	if p.Sentiment != nil {
		add("sentiment", *p.Sentiment)
	}
	if p.KeyPoints != nil {
		add("key_points", *p.KeyPoints)
	}
	if p.Outcome != nil {
		add("outcome", *p.Outcome)
	}
	if p.QualityScore != nil {
		add("quality_score", *p.QualityScore)
	}
	if p.RawAnalysis != nil {
		add("raw_analysis", *p.RawAnalysis)
	}
	if p.RecordingURL != nil {
		add("recording_url", *p.RecordingURL)
	}
	if p.EndReason != nil {
		add("end_reason", *p.EndReason)
	}
	if p.RawWebhook != nil {
		add("raw_webhook", *p.RawWebhook)
	}
	return set, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.VapiCallID,
		&c.OrganizationID,
		&c.PhoneNumber,
		&c.AssistantID,
		&c.Status,
		&startedAt,
		&endedAt,
		&c.DurationSeconds,
		&c.Cost,
		&c.Transcript,
		&c.PartialTranscript,
		&c.Summary,
		&c.Sentiment,
		&c.KeyPoints,
		&c.Outcome,
		&c.QualityScore,
		&c.RawAnalysis,
		&c.RecordingURL,
		&c.EndReason,
		&c.RawWebhook,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}
