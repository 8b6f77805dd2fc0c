// Package audit provides the append-only security trail: one row per login
// attempt and one row per state-changing action. Rows are written
// synchronously within the operation that caused them, never fire-and-forget.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Entry records one state-changing or security-relevant action.
type Entry struct {
	ID          string          `json:"id"`
	UserID      *string         `json:"user_id,omitempty"`
	Username    string          `json:"username,omitempty"`
	IP          string          `json:"ip,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Action      string          `json:"action"`
	Resource    string          `json:"resource"`
	ResourceID  *string         `json:"resource_id,omitempty"`
	Description string          `json:"description,omitempty"`
	OldValues   json.RawMessage `json:"old_values,omitempty"`
	NewValues   json.RawMessage `json:"new_values,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LoginAttempt records one authentication attempt, success or failure.
type LoginAttempt struct {
	ID            string    `json:"id"`
	Identifier    string    `json:"identifier"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	UserID        *string   `json:"user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EntryFilter narrows audit log listings.
type EntryFilter struct {
	UserID   string
	Action   string
	Resource string
	Limit    int
	Offset   int
}

// AttemptFilter narrows login attempt listings.
type AttemptFilter struct {
	Identifier string
	Success    *bool
	Since      time.Time
	Limit      int
	Offset     int
}

// Store appends and lists immutable audit rows. Entries are never updated
// or deleted by the system itself.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	AppendLoginAttempt(ctx context.Context, a *LoginAttempt) error
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, int, error)
	ListLoginAttempts(ctx context.Context, f AttemptFilter) ([]LoginAttempt, int, error)
}
