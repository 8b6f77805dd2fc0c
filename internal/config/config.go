// Package config loads runtime configuration from SHOPADMIN_* environment
// variables, with optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the API process needs at startup.
type Config struct {
	Addr        string
	DatabaseDSN string

	JWTSecret        string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ResetTokenTTL    time.Duration
	RememberMeFactor int

	BcryptCost      int
	MaxFailedLogins int
	LockoutDuration time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int
	AllowedOrigins     []string

	MigrationsDir string
	SeedsDir      string
}

// Load reads the environment (after merging a .env file, if present) and
// validates the required settings.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:        envString("SHOPADMIN_ADDR", ":8080"),
		DatabaseDSN: envString("SHOPADMIN_PG_DSN", ""),

		JWTSecret:        os.Getenv("SHOPADMIN_JWT_SECRET"),
		JWTIssuer:        envString("SHOPADMIN_JWT_ISSUER", "shopadmin"),
		AccessTokenTTL:   envDuration("SHOPADMIN_ACCESS_TTL", 30*time.Minute),
		RefreshTokenTTL:  envDuration("SHOPADMIN_REFRESH_TTL", 7*24*time.Hour),
		ResetTokenTTL:    envDuration("SHOPADMIN_RESET_TTL", time.Hour),
		RememberMeFactor: envInt("SHOPADMIN_REMEMBER_FACTOR", 7),

		BcryptCost:      envInt("SHOPADMIN_BCRYPT_COST", 0),
		MaxFailedLogins: envInt("SHOPADMIN_MAX_FAILED_LOGINS", 5),
		LockoutDuration: envDuration("SHOPADMIN_LOCKOUT_DURATION", 15*time.Minute),

		RateLimitPerSecond: envFloat("SHOPADMIN_RATE_LIMIT_RPS", 50),
		RateLimitBurst:     envInt("SHOPADMIN_RATE_LIMIT_BURST", 100),
		AllowedOrigins:     envList("SHOPADMIN_ALLOWED_ORIGINS", []string{"*"}),

		MigrationsDir: envString("SHOPADMIN_MIGRATIONS_DIR", "migrations"),
		SeedsDir:      envString("SHOPADMIN_SEEDS_DIR", "seeds"),
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("config: SHOPADMIN_JWT_SECRET is required")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("config: SHOPADMIN_PG_DSN is required")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
