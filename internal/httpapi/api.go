// Package httpapi exposes the admin authentication service over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/auth"
	"shopadmin.org/internal/obs"
)

// ReadyProbe pings the database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API dependencies.
type Options struct {
	Auth    *auth.Service
	Trail   *audit.Recorder
	Ready   ReadyProbe
	Version string

	AllowedOrigins     []string
	RateLimitBurst     int
	RateLimitPerSecond float64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	trail      *audit.Recorder
	readyProbe ReadyProbe
	version    string

	allowedOrigins     []string
	rateLimitBurst     int
	rateLimitPerSecond float64
}

func New(opts Options) *API {
	a := &API{
		mux:                http.NewServeMux(),
		auth:               opts.Auth,
		trail:              opts.Trail,
		readyProbe:         opts.Ready,
		version:            opts.Version,
		allowedOrigins:     opts.AllowedOrigins,
		rateLimitBurst:     opts.RateLimitBurst,
		rateLimitPerSecond: opts.RateLimitPerSecond,
	}
	if a.rateLimitBurst <= 0 {
		a.rateLimitBurst = 100
	}
	if a.rateLimitPerSecond <= 0 {
		a.rateLimitPerSecond = 50
	}
	if len(a.allowedOrigins) == 0 {
		a.allowedOrigins = []string{"*"}
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth surface
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/status", a.handleAuthStatus)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/approve-user", a.handleApproveUser)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)

	// user administration
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// roles and permissions
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)

	// audit read surface
	a.mux.HandleFunc("/v1/audit", a.handleAuditEntries)
	a.mux.HandleFunc("/v1/audit/login-attempts", a.handleLoginAttempts)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = RateLimit(h, a.rateLimitBurst, a.rateLimitPerSecond)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.allowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

// --- ops handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "shopadmin-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "shopadmin-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
