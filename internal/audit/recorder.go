package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"shopadmin.org/internal/ids"
	"shopadmin.org/internal/obs"
)

// ActionRecord describes a privileged action to be logged.
type ActionRecord struct {
	UserID      string
	Username    string
	IP          string
	UserAgent   string
	Action      string
	Resource    string
	ResourceID  string
	Description string
	OldValues   any
	NewValues   any
}

// AttemptRecord describes one login attempt to be logged.
type AttemptRecord struct {
	Identifier    string
	IP            string
	UserAgent     string
	Success       bool
	FailureReason string
	UserID        string
}

// Recorder writes audit rows through a Store and mirrors each one as a JSON
// log line. A failed write surfaces to the caller; the trail is part of the
// operation, not best-effort telemetry.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over a store.
func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RecordAction appends one audit entry for a state-changing operation.
// Called immediately after the primary mutation commits; a write failure is
// returned so the caller can surface the partial outcome.
func (r *Recorder) RecordAction(ctx context.Context, rec ActionRecord) error {
	rec.Action = strings.TrimSpace(rec.Action)
	rec.Resource = strings.TrimSpace(rec.Resource)
	if rec.Action == "" || rec.Resource == "" {
		return errors.New("audit: action and resource are required")
	}
	entry := &Entry{
		ID:          ids.New(),
		Username:    rec.Username,
		IP:          rec.IP,
		UserAgent:   rec.UserAgent,
		Action:      rec.Action,
		Resource:    rec.Resource,
		Description: rec.Description,
		CreatedAt:   r.now().UTC(),
	}
	if rec.UserID != "" {
		entry.UserID = &rec.UserID
	}
	if rec.ResourceID != "" {
		entry.ResourceID = &rec.ResourceID
	}
	var err error
	if entry.OldValues, err = marshalSnapshot(rec.OldValues); err != nil {
		return err
	}
	if entry.NewValues, err = marshalSnapshot(rec.NewValues); err != nil {
		return err
	}
	if err := r.store.AppendEntry(ctx, entry); err != nil {
		return err
	}
	obs.LogRequest(map[string]any{
		"ts":       entry.CreatedAt.Format(time.RFC3339Nano),
		"type":     "audit",
		"action":   entry.Action,
		"resource": entry.Resource,
		"user_id":  rec.UserID,
	})
	return nil
}

// RecordLoginAttempt appends exactly one row per login endpoint invocation,
// on every branch, before the HTTP response goes out.
func (r *Recorder) RecordLoginAttempt(ctx context.Context, rec AttemptRecord) error {
	attempt := &LoginAttempt{
		ID:            ids.New(),
		Identifier:    strings.TrimSpace(rec.Identifier),
		IP:            rec.IP,
		UserAgent:     rec.UserAgent,
		Success:       rec.Success,
		FailureReason: rec.FailureReason,
		CreatedAt:     r.now().UTC(),
	}
	if rec.UserID != "" {
		attempt.UserID = &rec.UserID
	}
	if err := r.store.AppendLoginAttempt(ctx, attempt); err != nil {
		return err
	}
	obs.ObserveLoginAttempt(attempt.Success, attempt.FailureReason)
	obs.LogRequest(map[string]any{
		"ts":      attempt.CreatedAt.Format(time.RFC3339Nano),
		"type":    "login_attempt",
		"success": attempt.Success,
		"reason":  attempt.FailureReason,
	})
	return nil
}

// Entries lists audit entries for the read surface.
func (r *Recorder) Entries(ctx context.Context, f EntryFilter) ([]Entry, int, error) {
	return r.store.ListEntries(ctx, f)
}

// LoginAttempts lists login attempts for the read surface.
func (r *Recorder) LoginAttempts(ctx context.Context, f AttemptFilter) ([]LoginAttempt, int, error) {
	return r.store.ListLoginAttempts(ctx, f)
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
