package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/auth"
	"shopadmin.org/internal/config"
	"shopadmin.org/internal/httpapi"
	"shopadmin.org/internal/obs"
	"shopadmin.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	trail, err := audit.NewRecorder(store)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithResetTTL(cfg.ResetTokenTTL),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	svc, err := auth.NewService(store, tokens, trail,
		auth.WithPasswordHasher(auth.NewPasswordHasher(cfg.BcryptCost)),
		auth.WithLockoutPolicy(cfg.MaxFailedLogins, cfg.LockoutDuration),
		auth.WithRememberFactor(cfg.RememberMeFactor),
	)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(startCtx); err != nil {
		log.Printf("ensure permissions: %v", err)
	}
	cancel()

	api := httpapi.New(httpapi.Options{
		Auth:               svc,
		Trail:              trail,
		Ready:              httpapi.ReadyProbe{DB: store.DB()},
		Version:            version,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitBurst:     cfg.RateLimitBurst,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting shopadmin-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
