package calls

import (
	"context"
	"testing"
	"time"
)

func strPtr(s string) *string            { return &s }
func statusPtr(s CallStatus) *CallStatus { return &s }
func floatPtr(f float64) *float64        { return &f }

func TestPatch_OmittedFieldsPreserved(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	_, err := repo.UpsertByProviderID(ctx, "c1", Patch{Cost: floatPtr(1.23), Status: statusPtr(CallStatusInProgress)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A call-ended style patch without a cost field must leave cost alone.
	got, err := repo.UpdateByRef(ctx, "c1", Patch{Status: statusPtr(CallStatusCompleted)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Cost != 1.23 {
		t.Fatalf("expected cost preserved at 1.23, got %v", got.Cost)
	}
	if got.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
}

func TestDualKeyMatching(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	created, err := repo.UpsertByProviderID(ctx, "provider-x", Patch{Transcript: strPtr("one")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.ID == "" || created.ID == "provider-x" {
		t.Fatalf("expected distinct internal id, got %q", created.ID)
	}

	if _, err := repo.UpdateByRef(ctx, "provider-x", Patch{Transcript: strPtr("two")}); err != nil {
		t.Fatalf("update by provider id: %v", err)
	}
	got, err := repo.UpdateByRef(ctx, created.ID, Patch{Transcript: strPtr("three")})
	if err != nil {
		t.Fatalf("update by internal id: %v", err)
	}
	if got.Transcript != "three" {
		t.Fatalf("expected transcript three, got %q", got.Transcript)
	}
}

func TestUpdateByRef_NotFound(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.UpdateByRef(context.Background(), "missing", Patch{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchClauses_OnlyNonNil(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	set, args := patchClauses(Patch{Transcript: strPtr("hi"), EndedAt: &now})
	if len(set) != 2 || len(args) != 2 {
		t.Fatalf("expected 2 clauses, got %v / %v", set, args)
	}
}

func TestCallStatusValuesAreNonEmpty(t *testing.T) {
	for _, s := range []CallStatus{CallStatusQueued, CallStatusInProgress, CallStatusCompleted} {
		if s == "" {
			t.Fatalf("expected non-empty status")
		}
	}
}
