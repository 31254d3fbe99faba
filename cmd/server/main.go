// Package main is the entrypoint for the PlanTech API server.
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

	"github.com/AhmAshraf1/PlanTech/internal/api"
	"github.com/AhmAshraf1/PlanTech/internal/api/handler"
	mw "github.com/AhmAshraf1/PlanTech/internal/api/middleware"
	"github.com/AhmAshraf1/PlanTech/internal/cache"
	"github.com/AhmAshraf1/PlanTech/internal/classifier"
	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/AhmAshraf1/PlanTech/internal/metrics"
	"github.com/AhmAshraf1/PlanTech/internal/prediction"
	"github.com/AhmAshraf1/PlanTech/internal/store"
	"github.com/AhmAshraf1/PlanTech/internal/uploads"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "plantech",
		Short:         "Plant disease image classification API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := store.RunMigrations(cfg.Database); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("database migrations applied", "dialect", cfg.Database.Dialect())
			return nil
		},
	})

	return rootCmd
}

func run(ctx context.Context, configPath string) error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "model_backend", cfg.Model.Backend, "dialect", cfg.Database.Dialect(), "env", cfg.Server.Env)

	// 2. Open the prediction store
	db := openStore(ctx, cfg.Database)
	defer db.Close()

	// 3. Create cache
	c, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer c.Close()

	// 4. Upload directory
	images, err := uploads.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("prepare uploads: %w", err)
	}
	slog.Info("upload directory ready", "dir", images.Dir())

	// 5. Load model
	clf := loadClassifier(cfg.Model)
	if clf != nil {
		defer clf.Close()
	}

	// 6. Metrics
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// 7. Prediction service
	svc, err := prediction.NewService(prediction.Options{
		Classifier:          clf,
		Images:              images,
		Store:               db,
		Cache:               c,
		Metrics:             m,
		AdvisoryPersistence: cfg.Prediction.AdvisoryPersistence,
		HistoryCap:          cfg.Prediction.HistoryLimit,
		MaxPixels:           cfg.Uploads.MaxPixels,
	})
	if err != nil {
		return fmt.Errorf("create prediction service: %w", err)
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit:   mw.NewRateLimit(c, cfg.RateLimit.RequestsPerMinute),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler:  handler.NewHealthHandler(db, c),
		PredictHandler: handler.NewPredictHandler(svc, cfg.Uploads.MaxBytes),
		UploadHandler:  handler.NewUploadHandler(images),
		HistoryHandler: handler.NewHistoryHandler(svc),
		DebugDBHandler: handler.NewDebugDBHandler(db),
		TestHandler:    handler.NewTestHandler(svc),
		MetricsHandler: m.Handler(),
	}

	srv := newServer(cfg.Server.Port, api.NewRouter(deps))

	// 9. Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// openStore migrates and opens the configured database. The server still
// starts when the database cannot be reached; every store call then fails.
func openStore(ctx context.Context, cfg config.DatabaseConfig) store.Store {
	if err := store.RunMigrations(cfg); err != nil {
		slog.Error("database migrations failed", "error", err)
		return store.NewUnavailable(err)
	}

	db, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		return store.NewUnavailable(err)
	}
	slog.Info("database connected", "dialect", cfg.Dialect())
	return db
}

// openCache connects to Redis when configured and falls back to an in-process cache otherwise.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.URL == "" {
		slog.Info("using in-memory cache")
		return cache.NewMemoryCache(time.Minute), nil
	}

	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return redisCache, nil
}

// loadClassifier returns nil when the model cannot be loaded; /predict then
// reports the model as unavailable.
func loadClassifier(cfg config.ModelConfig) *classifier.Classifier {
	clf, err := classifier.Load(cfg)
	if err != nil {
		slog.Error("model not loaded", "backend", cfg.Backend, "path", cfg.Path, "error", err)
		return nil
	}
	slog.Info("model loaded", "backend", clf.Backend(), "classes", len(clf.Labels()))
	return clf
}
