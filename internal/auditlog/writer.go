package auditlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("auditlog: entry not found")

// Repository is the persistence contract for webhook log entries.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
}

// Writer records inbound payloads and processing failures.
//
// Both record methods are best-effort: a failed write is logged locally and
// swallowed. Audit persistence must never affect acknowledgment or handler
// execution.
type Writer struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewWriter(repo Repository, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{repo: repo, log: log, clock: time.Now}
}

func (w *Writer) RecordReceived(ctx context.Context, eventID, eventType, callID, orgID string, payload []byte) {
	w.append(ctx, Entry{
		EventID:        eventID,
		Type:           EntryTypeReceived,
		EventType:      eventType,
		CallID:         callID,
		OrganizationID: orgID,
		Payload:        string(payload),
	})
}

func (w *Writer) RecordError(ctx context.Context, eventID string, procErr error, payload []byte) {
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	w.append(ctx, Entry{
		EventID: eventID,
		Type:    EntryTypeError,
		Error:   msg,
		Payload: string(payload),
	})
}

func (w *Writer) append(ctx context.Context, e Entry) {
	if w.repo == nil {
		return
	}
	e.ID = uuid.NewString()
	e.CreatedAt = w.clock().UTC()
	if err := w.repo.Append(ctx, e); err != nil {
		w.log.Error("webhook log write failed", "event_id", e.EventID, "type", e.Type, "err", err)
	}
}
