package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shopadmin.org/internal/audit"
)

type captureStore struct {
	entries  []audit.Entry
	attempts []audit.LoginAttempt
}

func (s *captureStore) AppendEntry(_ context.Context, e *audit.Entry) error {
	s.entries = append(s.entries, *e)
	return nil
}

func (s *captureStore) AppendLoginAttempt(_ context.Context, a *audit.LoginAttempt) error {
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *captureStore) ListEntries(_ context.Context, _ audit.EntryFilter) ([]audit.Entry, int, error) {
	return s.entries, len(s.entries), nil
}

func (s *captureStore) ListLoginAttempts(_ context.Context, _ audit.AttemptFilter) ([]audit.LoginAttempt, int, error) {
	return s.attempts, len(s.attempts), nil
}

func newTestRecorder(t *testing.T, at time.Time) (*audit.Recorder, *captureStore) {
	t.Helper()
	store := &captureStore{}
	rec, err := audit.NewRecorder(store, audit.WithRecorderClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return rec, store
}

func TestNewRecorderRequiresStore(t *testing.T) {
	if _, err := audit.NewRecorder(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestRecordAction(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rec, store := newTestRecorder(t, at)

	err := rec.RecordAction(context.Background(), audit.ActionRecord{
		UserID:      "u1",
		Username:    "alice",
		IP:          "203.0.113.7",
		Action:      "update",
		Resource:    "users",
		ResourceID:  "u2",
		Description: "changed status",
		OldValues:   map[string]any{"status": "pending"},
		NewValues:   map[string]any{"status": "active"},
	})
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(store.entries))
	}
	e := store.entries[0]
	if e.ID == "" {
		t.Fatal("entry has no id")
	}
	if !e.CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", e.CreatedAt, at)
	}
	if e.UserID == nil || *e.UserID != "u1" {
		t.Fatal("user id not set")
	}
	if e.ResourceID == nil || *e.ResourceID != "u2" {
		t.Fatal("resource id not set")
	}

	var snapshot map[string]string
	if err := json.Unmarshal(e.NewValues, &snapshot); err != nil {
		t.Fatalf("decode new_values: %v", err)
	}
	if snapshot["status"] != "active" {
		t.Fatalf("new_values = %v", snapshot)
	}
}

func TestRecordActionRequiresActionAndResource(t *testing.T) {
	rec, store := newTestRecorder(t, time.Now())

	if err := rec.RecordAction(context.Background(), audit.ActionRecord{Resource: "users"}); err == nil {
		t.Fatal("expected error for missing action")
	}
	if err := rec.RecordAction(context.Background(), audit.ActionRecord{Action: "update"}); err == nil {
		t.Fatal("expected error for missing resource")
	}
	if len(store.entries) != 0 {
		t.Fatal("invalid records must not be stored")
	}
}

func TestRecordActionRawSnapshotPassthrough(t *testing.T) {
	rec, store := newTestRecorder(t, time.Now())

	raw := json.RawMessage(`{"name":"old"}`)
	err := rec.RecordAction(context.Background(), audit.ActionRecord{
		Action:    "update",
		Resource:  "roles",
		OldValues: raw,
	})
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if string(store.entries[0].OldValues) != `{"name":"old"}` {
		t.Fatalf("old_values = %s", store.entries[0].OldValues)
	}
}

func TestRecordLoginAttempt(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rec, store := newTestRecorder(t, at)

	err := rec.RecordLoginAttempt(context.Background(), audit.AttemptRecord{
		Identifier:    "  alice  ",
		IP:            "203.0.113.7",
		Success:       false,
		FailureReason: "invalid_credentials",
		UserID:        "u1",
	})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if len(store.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(store.attempts))
	}
	a := store.attempts[0]
	if a.Identifier != "alice" {
		t.Fatalf("identifier = %q, want trimmed", a.Identifier)
	}
	if a.UserID == nil || *a.UserID != "u1" {
		t.Fatal("user id not set")
	}
	if !a.CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", a.CreatedAt, at)
	}
}
