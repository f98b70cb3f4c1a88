// Package main is the entry point of the Certiva certification engine API.
//
// The server exposes enrollment, assessment submission, certificate issuance
// and public verification over HTTP. Configuration comes from the environment
// and an optional YAML file named by CONFIG_FILE.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/certiva/certiva-engine/config"
	"github.com/certiva/certiva-engine/internal/app"
	httpserver "github.com/certiva/certiva-engine/internal/interface/http"
	"github.com/certiva/certiva-engine/internal/interface/http/handlers"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := app.NewLogger(cfg.Observability, cfg.App.Name, string(cfg.App.Environment))
	defer func() { _ = log.Sync() }()

	log.Info("starting certification engine",
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.App.StorageDriver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ENGINE (stores, cache, events, handlers, scheduler)
	// ─────────────────────────────────────────────────────────────────────────
	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. AUTHENTICATION
	// ─────────────────────────────────────────────────────────────────────────
	auth, err := handlers.NewJWTAuth(handlers.JWTAuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		Leeway:   cfg.Auth.JWTLeeway,
	})
	if err != nil {
		return err
	}

	var adminAuth *handlers.AdminKeyAuth
	if cfg.Auth.AdminKeyHash != "" {
		adminAuth, err = handlers.NewAdminKeyAuth(cfg.Auth.AdminKeyHeader, cfg.Auth.AdminKeyHash)
		if err != nil {
			return err
		}
	} else {
		log.Info("ADMIN_KEY_HASH not set, admin routes disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.Version = cfg.App.Version

	server, err := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		EnrollHandler:              engine.Enroll,
		SubmitAssessmentHandler:    engine.Submit,
		GenerateCertificateHandler: engine.Generate,
		UpsertCoursePolicyHandler:  engine.UpsertPolicy,
		EnrollmentsHandler:         engine.EnrollmentsQuery,
		ListCertificatesHandler:    engine.ListCertificates,
		VerifyCertificateHandler:   engine.Verify,
		RenderCertificateHandler:   engine.Render,
		Auth:                       auth,
		AdminAuth:                  adminAuth,
		HealthChecker:              engine.HealthChecker(),
		Logger:                     log,
	})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if engine.Scheduler != nil {
		if err := engine.Scheduler.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		start := time.Now()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		log.Info("http server stopped", logger.Latency(time.Since(start)))

		if engine.Scheduler != nil && engine.Scheduler.IsRunning() {
			if err := engine.Scheduler.Stop(); err != nil {
				return fmt.Errorf("scheduler shutdown: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown completed")
	return nil
}
