package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SHOPADMIN_JWT_SECRET", "test-secret")
	t.Setenv("SHOPADMIN_PG_DSN", "postgres://localhost/shopadmin_test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.RefreshTokenTTL)
	}
	if cfg.MaxFailedLogins != 5 || cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("lockout = %d/%v", cfg.MaxFailedLogins, cfg.LockoutDuration)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresSecretAndDSN(t *testing.T) {
	t.Setenv("SHOPADMIN_JWT_SECRET", "")
	t.Setenv("SHOPADMIN_PG_DSN", "postgres://localhost/shopadmin_test")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without jwt secret")
	}

	t.Setenv("SHOPADMIN_JWT_SECRET", "test-secret")
	t.Setenv("SHOPADMIN_PG_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without database dsn")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SHOPADMIN_ADDR", ":9090")
	t.Setenv("SHOPADMIN_ACCESS_TTL", "45m")
	t.Setenv("SHOPADMIN_RATE_LIMIT_RPS", "12.5")
	t.Setenv("SHOPADMIN_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL != 45*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.RateLimitPerSecond != 12.5 {
		t.Fatalf("rps = %v", cfg.RateLimitPerSecond)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestBadValuesFallBackToDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SHOPADMIN_ACCESS_TTL", "soon")
	t.Setenv("SHOPADMIN_LOCKOUT_DURATION", "-5m")
	t.Setenv("SHOPADMIN_MAX_FAILED_LOGINS", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("lockout duration = %v", cfg.LockoutDuration)
	}
	if cfg.MaxFailedLogins != 5 {
		t.Fatalf("max failed logins = %d", cfg.MaxFailedLogins)
	}
}
