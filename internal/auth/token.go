package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. Every verification site must check the kind it expects:
// a refresh or password-reset token never authenticates an API call.
const (
	TokenTypeAccess        = "access"
	TokenTypeRefresh       = "refresh"
	TokenTypePasswordReset = "password_reset"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = time.Hour
)

// Claims is the signed payload carried by every token issued here.
// Password-reset tokens carry only the email and type.
type Claims struct {
	UserID       string   `json:"user_id,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role,omitempty"`
	IsSuperAdmin bool     `json:"is_super_admin,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	TokenType    string   `json:"type"`
	jwt.RegisteredClaims
}

// TokenPayload is the identity snapshot embedded into access and refresh
// tokens at issuance. Permission claims go stale if a role changes before
// the token expires; authorization decisions therefore never read them.
type TokenPayload struct {
	UserID       string
	Username     string
	Email        string
	Role         string
	IsSuperAdmin bool
	Permissions  []string
}

// TokenService issues and verifies HS256-signed, time-limited tokens.
// The signing secret is fixed at construction and shared process-wide.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim stamped on and required of every token.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenService) { t.issuer = strings.TrimSpace(issuer) }
}

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the default refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithResetTTL overrides the default password-reset token lifetime.
func WithResetTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) {
		if ttl > 0 {
			t.resetTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for expiry tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenService) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenService constructs a TokenService around a signing secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL returns the configured base access token lifetime.
func (t *TokenService) AccessTTL() time.Duration { return t.accessTTL }

// IssueAccess signs an access token. ttl <= 0 selects the configured default;
// the login flow passes a multiplied ttl when remember-me is requested.
func (t *TokenService) IssueAccess(p TokenPayload, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = t.accessTTL
	}
	return t.sign(p, TokenTypeAccess, ttl)
}

// IssueRefresh signs a refresh token with the fixed refresh lifetime.
func (t *TokenService) IssueRefresh(p TokenPayload) (string, time.Time, error) {
	return t.sign(p, TokenTypeRefresh, t.refreshTTL)
}

// IssuePasswordReset signs a reset token carrying only the email claim.
// It deliberately excludes identity and permission claims: its sole purpose
// is to authorize one future password change.
func (t *TokenService) IssuePasswordReset(email string) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", time.Time{}, errors.New("auth: email is required")
	}
	return t.sign(TokenPayload{Email: email}, TokenTypePasswordReset, t.resetTTL)
}

func (t *TokenService) sign(p TokenPayload, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:       p.UserID,
		Username:     p.Username,
		Email:        p.Email,
		Role:         p.Role,
		IsSuperAdmin: p.IsSuperAdmin,
		Permissions:  p.Permissions,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature and expiry and returns the claims. Every failure
// mode collapses into ErrInvalidToken so that callers cannot build an oracle
// out of the responses. Verify does not enforce the type claim; call sites
// expect different kinds and must check it themselves.
func (t *TokenService) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrInvalidToken
	}
	if claims.TokenType == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
