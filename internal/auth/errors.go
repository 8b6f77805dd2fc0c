package auth

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("permission denied")

	// ErrInvalidToken covers every structural or cryptographic token failure.
	// Callers must not be able to tell which check failed.
	ErrInvalidToken = errors.New("invalid token")

	// Login rejection reasons. The login endpoint surfaces these individually;
	// token verification on later requests never does.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountPending     = errors.New("account pending approval")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountBanned      = errors.New("account banned")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
)

// Failure reason codes stored on login attempt records.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountPending     = "account_pending_approval"
	ReasonAccountSuspended   = "account_suspended"
	ReasonAccountBanned      = "account_banned"
	ReasonAccountLocked      = "account_locked"
)
