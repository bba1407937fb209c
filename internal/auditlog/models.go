package auditlog

import "time"

// Entry is an immutable, append-only archive of one inbound webhook payload
// or one processing failure.
//
// Invariants:
// - Entries are never updated or deleted by this service.
// - Writes are best-effort; nothing in the pipeline blocks on audit failures.
//
// Storage recommendation (Postgres):
// - Table webhook_logs with an INSERT-only policy.
// - Optional: partition by time for retention.
type Entry struct {
	ID      string    `json:"id" db:"id"`
	EventID string    `json:"event_id" db:"event_id"`
	Type    EntryType `json:"type" db:"type"`

	EventType      string `json:"event_type,omitempty" db:"event_type"`
	CallID         string `json:"call_id,omitempty" db:"call_id"`
	OrganizationID string `json:"organization_id,omitempty" db:"organization_id"`

	// Payload is the raw inbound body as received, for inspection and replay.
	Payload string `json:"payload,omitempty" db:"payload"`

	// Error is set only on processing-failure entries.
	Error string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeReceived EntryType = "received"
	EntryTypeError    EntryType = "error"
)
