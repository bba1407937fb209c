package auditlog

import (
	"context"
	"errors"
	"testing"
)

func TestRecordReceived_AppendsEntry(t *testing.T) {
	repo := NewMemoryRepo()
	w := NewWriter(repo, nil)

	w.RecordReceived(context.Background(), "ev1", "call-started", "c1", "org1", []byte(`{"type":"call-started"}`))

	got := repo.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Type != EntryTypeReceived || e.EventID != "ev1" || e.CallID != "c1" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", e)
	}
}

func TestRecordError_CapturesMessage(t *testing.T) {
	repo := NewMemoryRepo()
	w := NewWriter(repo, nil)

	w.RecordError(context.Background(), "ev1", errors.New("handler exploded"), []byte(`{}`))

	got := repo.Entries()
	if len(got) != 1 || got[0].Type != EntryTypeError || got[0].Error != "handler exploded" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestWriter_SwallowsRepoFailure(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailAppend = errors.New("disk full")
	w := NewWriter(repo, nil)

	// Must not panic or propagate.
	w.RecordReceived(context.Background(), "ev1", "transcript", "", "", nil)
	w.RecordError(context.Background(), "ev1", errors.New("x"), nil)

	if len(repo.Entries()) != 0 {
		t.Fatalf("expected no entries recorded")
	}
}

func TestListRecent_NewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	w := NewWriter(repo, nil)
	for _, id := range []string{"a", "b", "c"} {
		w.RecordReceived(context.Background(), id, "transcript", "", "", nil)
	}

	got, err := repo.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "c" || got[1].EventID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
