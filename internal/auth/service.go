package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/ids"
)

const (
	defaultMaxFailedLogins = 5
	defaultLockoutDuration = 15 * time.Minute
	defaultRememberFactor  = 7
)

// Service composes credential verification, account state, token issuance
// and the audit trail into the authentication flows.
type Service struct {
	store  Store
	tokens *TokenService
	trail  *audit.Recorder
	hasher PasswordHasher

	maxFailedLogins int
	lockoutDuration time.Duration
	rememberFactor  int
	now             func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithPasswordHasher overrides the default-cost bcrypt hasher.
func WithPasswordHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// WithLockoutPolicy sets the consecutive-failure threshold and how long an
// account stays locked once it is crossed.
func WithLockoutPolicy(maxFailures int, duration time.Duration) ServiceOption {
	return func(s *Service) {
		if maxFailures > 0 {
			s.maxFailedLogins = maxFailures
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

// WithRememberFactor sets the access TTL multiplier applied when a login
// requests remember-me.
func WithRememberFactor(factor int) ServiceOption {
	return func(s *Service) {
		if factor > 0 {
			s.rememberFactor = factor
		}
	}
}

// WithClock overrides the time source (useful for lockout tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication service.
func NewService(store Store, tokens *TokenService, trail *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if trail == nil {
		return nil, errors.New("auth: audit recorder is required")
	}
	s := &Service{
		store:           store,
		tokens:          tokens,
		trail:           trail,
		hasher:          NewPasswordHasher(0),
		maxFailedLogins: defaultMaxFailedLogins,
		lockoutDuration: defaultLockoutDuration,
		rememberFactor:  defaultRememberFactor,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins makes sure the static permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions().Ensure(ctx, BuiltinPermissions)
}

// Principal loads the user with its role's permissions resolved.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return s.principalFor(ctx, user)
}

func (s *Service) principalFor(ctx context.Context, user *User) (Principal, error) {
	var perms []Permission
	if user.RoleID != "" {
		role, err := s.store.Roles().Find(ctx, user.RoleID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Principal{}, err
		}
		if role != nil {
			list, err := s.store.Permissions().ForRole(ctx, role.ID)
			if err != nil {
				return Principal{}, err
			}
			role.Permissions = list
			user.Role = role
			perms = list
		}
	}
	return NewPrincipal(user, perms), nil
}

// LoginInput carries one authentication attempt.
type LoginInput struct {
	Identifier string
	Password   string
	RememberMe bool
	IP         string
	UserAgent  string
}

// TokenPair is the credential set returned by a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult bundles tokens with the authenticated principal.
type LoginResult struct {
	Tokens    TokenPair
	Principal Principal
}

// Login authenticates credentials and issues a token pair. Exactly one login
// attempt row is written on every branch, before the result is returned.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		if err := s.recordFailure(ctx, in, "", ReasonInvalidCredentials); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	users := s.store.Users()
	user, err := users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if err := s.recordFailure(ctx, in, "", ReasonInvalidCredentials); err != nil {
				return nil, err
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now().UTC()

	// Lockout blocks authentication regardless of password correctness and,
	// deliberately, does not extend the lockout on further attempts.
	if user.LockedAt(now) {
		if err := s.recordFailure(ctx, in, user.ID, ReasonAccountLocked); err != nil {
			return nil, err
		}
		return nil, ErrAccountLocked
	}

	if !VerifyPassword(user.PasswordHash, in.Password) {
		failures := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if failures >= s.maxFailedLogins {
			deadline := now.Add(s.lockoutDuration)
			lockedUntil = &deadline
		}
		if err := users.SaveLoginFailure(ctx, user.ID, failures, lockedUntil); err != nil {
			return nil, err
		}
		if err := s.recordFailure(ctx, in, user.ID, ReasonInvalidCredentials); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	switch user.Status {
	case StatusActive:
	case StatusPending:
		if err := s.recordFailure(ctx, in, user.ID, ReasonAccountPending); err != nil {
			return nil, err
		}
		return nil, ErrAccountPending
	case StatusSuspended:
		if err := s.recordFailure(ctx, in, user.ID, ReasonAccountSuspended); err != nil {
			return nil, err
		}
		return nil, ErrAccountSuspended
	default:
		if err := s.recordFailure(ctx, in, user.ID, ReasonAccountBanned); err != nil {
			return nil, err
		}
		return nil, ErrAccountBanned
	}

	principal, err := s.principalFor(ctx, user)
	if err != nil {
		return nil, err
	}

	// Success ordering: attempt row, account update, audit entry, tokens.
	if err := s.trail.RecordLoginAttempt(ctx, audit.AttemptRecord{
		Identifier: identifier,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		Success:    true,
		UserID:     user.ID,
	}); err != nil {
		return nil, err
	}
	if err := users.SaveLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      user.ID,
		Username:    user.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "login",
		Resource:    "auth",
		Description: fmt.Sprintf("User logged in from %s", in.IP),
	}); err != nil {
		return nil, err
	}

	ttl := s.tokens.AccessTTL()
	if in.RememberMe {
		ttl *= time.Duration(s.rememberFactor)
	}
	payload := tokenPayload(principal)
	access, accessExp, err := s.tokens.IssueAccess(payload, ttl)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefresh(payload)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Tokens: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "bearer",
			ExpiresIn:    int64(accessExp.Sub(now).Seconds()),
		},
		Principal: principal,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, in LoginInput, userID, reason string) error {
	return s.trail.RecordLoginAttempt(ctx, audit.AttemptRecord{
		Identifier:    strings.TrimSpace(in.Identifier),
		IP:            in.IP,
		UserAgent:     in.UserAgent,
		Success:       false,
		FailureReason: reason,
		UserID:        userID,
	})
}

// Authenticate validates an access token and yields the live principal.
// The account is re-loaded and its status re-checked on every call: that is
// the only mechanism by which a ban or suspension takes effect before the
// token's natural expiry.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess || claims.UserID == "" {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.Users().Find(ctx, claims.UserID)
	if err != nil {
		// A stale token for a deleted account must not authenticate.
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.IsActive() {
		return Principal{}, ErrAccountInactive
	}
	return s.principalFor(ctx, user)
}

// Refresh exchanges a valid refresh token for a new access token carrying
// freshly resolved permissions.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh || claims.UserID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	user, err := s.store.Users().Find(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	if !user.IsActive() {
		return "", time.Time{}, ErrAccountInactive
	}
	principal, err := s.principalFor(ctx, user)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.IssueAccess(tokenPayload(principal), 0)
}

// Logout records the logout action. Tokens are not individually revocable;
// the client discards them and the short access TTL does the rest.
func (s *Service) Logout(ctx context.Context, principal Principal, ip, userAgent string) error {
	return s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      principal.User.ID,
		Username:    principal.User.Username,
		IP:          ip,
		UserAgent:   userAgent,
		Action:      "logout",
		Resource:    "auth",
		Description: fmt.Sprintf("User logged out from %s", ip),
	})
}

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	Phone           string
	IP              string
	UserAgent       string
}

// Register creates a pending account with the default role. It must be
// approved by a holder of users.approve before it can log in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if len(username) < 3 {
		return nil, fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if in.Password != in.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	users := s.store.Users()
	if _, err := users.FindByIdentifier(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	role, err := s.store.Roles().FindByName(ctx, DefaultRoleName)
	if err != nil {
		return nil, fmt.Errorf("default role %q: %w", DefaultRoleName, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Status:       StatusPending,
		RoleID:       role.ID,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      user.ID,
		Username:    user.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "create",
		Resource:    "users",
		ResourceID:  user.ID,
		Description: fmt.Sprintf("User registered from %s", in.IP),
		NewValues: map[string]any{
			"username":  user.Username,
			"email":     user.Email,
			"full_name": user.FullName,
			"status":    user.Status,
		},
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, principal Principal, current, next string) error {
	if !VerifyPassword(principal.User.PasswordHash, current) {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if _, err := s.store.Users().Update(ctx, principal.User.ID, UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	return s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      principal.User.ID,
		Username:    principal.User.Username,
		Action:      "update",
		Resource:    "users",
		ResourceID:  principal.User.ID,
		Description: "User changed password",
	})
}

// ApprovalInput carries an approve-or-reject decision for a pending account.
type ApprovalInput struct {
	UserID    string
	Approve   bool
	RoleID    string
	Notes     string
	IP        string
	UserAgent string
}

// ApproveUser activates or rejects a pending registration. Rejection bans
// the account.
func (s *Service) ApproveUser(ctx context.Context, actor Principal, in ApprovalInput) (*User, error) {
	target, err := s.store.Users().Find(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if target.Status != StatusPending {
		return nil, fmt.Errorf("%w: user is not pending approval", ErrConflict)
	}

	oldStatus := target.Status
	upd := UserUpdate{}
	action := "reject"
	if in.Approve {
		action = "approve"
		now := s.now().UTC()
		status := StatusActive
		upd.Status = &status
		upd.ApprovedAt = &now
		upd.ApprovedBy = &actor.User.ID
		if in.RoleID != "" {
			if _, err := s.store.Roles().Find(ctx, in.RoleID); err != nil {
				return nil, fmt.Errorf("role %s: %w", in.RoleID, err)
			}
			upd.RoleID = &in.RoleID
		}
	} else {
		status := StatusBanned
		upd.Status = &status
	}

	updated, err := s.store.Users().Update(ctx, target.ID, upd)
	if err != nil {
		return nil, err
	}

	verb := "rejected"
	if in.Approve {
		verb = "approved"
	}
	description := fmt.Sprintf("User %s %s by %s", updated.Username, verb, actor.User.Username)
	if in.Notes != "" {
		description += ": " + in.Notes
	}
	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      action,
		Resource:    "users",
		ResourceID:  updated.ID,
		Description: description,
		OldValues:   map[string]any{"status": oldStatus},
		NewValues:   map[string]any{"status": updated.Status},
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// ForgotPassword issues a password-reset token for the account behind email.
// An unknown or inactive email yields no token and no error, so the endpoint
// cannot be used to enumerate accounts. Delivering the token to the user
// (email) is outside this service.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", time.Time{}, nil
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, err
	}
	if !user.IsActive() {
		return "", time.Time{}, nil
	}
	token, exp, err := s.tokens.IssuePasswordReset(user.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      user.ID,
		Username:    user.Username,
		Action:      "request_reset",
		Resource:    "auth",
		Description: "Password reset token issued",
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ResetPassword redeems a password-reset token for a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.TokenType != TokenTypePasswordReset || claims.Email == "" {
		return ErrInvalidToken
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	user, err := s.store.Users().FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.Users().Update(ctx, user.ID, UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	return s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      user.ID,
		Username:    user.Username,
		Action:      "update",
		Resource:    "users",
		ResourceID:  user.ID,
		Description: "Password reset via token",
	})
}

func tokenPayload(p Principal) TokenPayload {
	payload := TokenPayload{
		UserID:       p.User.ID,
		Username:     p.User.Username,
		Email:        p.User.Email,
		IsSuperAdmin: p.User.IsSuperAdmin,
		Permissions:  p.PermissionKeys(),
	}
	if p.User.Role != nil {
		payload.Role = p.User.Role.Name
	}
	return payload
}
