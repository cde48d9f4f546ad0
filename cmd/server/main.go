// Package main is the entrypoint for the fleetgate API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetgate/fleetgate/internal/api"
	"github.com/fleetgate/fleetgate/internal/api/handler"
	mw "github.com/fleetgate/fleetgate/internal/api/middleware"
	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/approval"
	"github.com/fleetgate/fleetgate/internal/blob"
	"github.com/fleetgate/fleetgate/internal/cache"
	"github.com/fleetgate/fleetgate/internal/config"
	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/internal/listing"
	"github.com/fleetgate/fleetgate/internal/media"
	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/internal/onboarding"
	"github.com/fleetgate/fleetgate/internal/reconcile"
	"github.com/fleetgate/fleetgate/internal/safety"
	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "safety_fail_open", cfg.Safety.FailOpen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Identity and sessions
	tokens, err := identity.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("create session tokens: %w", err)
	}
	idp := identity.NewPostgresProvider(pool, tokens)
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New(prometheus.NewRegistry())

	// 6. Blob buckets and the image safety gate
	docs := blob.NewHTTPStore(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, cfg.Storage.DocumentBucket, cfg.Storage.Timeout)
	photos := blob.NewHTTPStore(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, cfg.Storage.ImageBucket, cfg.Storage.Timeout)
	gate := newGate(cfg.Safety, redisCache, m, slog.Default())
	slog.Info("safety gate initialized", "vision_enabled", cfg.Safety.APIKey != "")

	// 7. Workflows
	pipeline := media.NewPipeline(gate, photos, media.Limits{
		MaxExterior:   cfg.Media.MaxExterior,
		MaxInterior:   cfg.Media.MaxInterior,
		MaxImageBytes: cfg.Media.MaxImageBytes,
	}, slog.Default())

	workflow := onboarding.NewWorkflow(idp, docs, pgStore, onboarding.Limits{
		MaxDocuments:     cfg.Onboarding.MaxDocuments,
		MaxDocumentBytes: cfg.Onboarding.MaxDocumentBytes,
		IdentityTimeout:  cfg.Auth.Timeout,
		StorageTimeout:   cfg.Storage.Timeout,
		StoreTimeout:     cfg.Database.QueryTimeout,
	}, m, slog.Default())

	reviews := approval.NewMachine(pgStore, idp, cfg.Auth.Timeout, m, slog.Default())
	listings := listing.NewService(pgStore, pipeline, slog.Default())

	// 8. Background reconciliation of approved tenants
	reconciler := reconcile.New(pgStore, idp, m, slog.Default())
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		reconciler.Run(ctx, cfg.Reconcile.Interval)
	}()

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(idp),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),
		Metrics:   m,

		HealthHandler: healthHandler(pgStore, redisCache),

		Onboarding:     workflow,
		Reviews:        reviews,
		Listings:       handler.NewListings(listings, photos, cfg.Server.MaxUploadBytes),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		<-reconcileDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-reconcileDone

	slog.Info("server stopped gracefully")
	return nil
}

// newGate assembles the classifier chain: vision API, rate limit, verdict cache.
// Without an API key every classification errors, which only FailOpen tolerates.
func newGate(cfg config.SafetyConfig, c cache.Cache, m *metrics.Metrics, logger *slog.Logger) *safety.Gate {
	var classifier safety.Classifier = safety.NewDisabledClassifier()
	if cfg.APIKey != "" {
		classifier = safety.NewVisionClassifier(cfg.VisionURL, cfg.APIKey, cfg.Timeout)
	}
	classifier = safety.NewRateLimitedClassifier(classifier, cfg.RequestsPerSec, cfg.MaxConcurrency)
	classifier = safety.NewCachedClassifier(classifier, c, cfg.VerdictTTL, m, logger)

	return safety.NewGate(classifier, safety.GateOptions{
		Timeout:        cfg.Timeout,
		MaxConcurrency: cfg.MaxConcurrency,
		FailOpen:       cfg.FailOpen,
		Metrics:        m,
		Logger:         logger,
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.ErrorDetails(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
