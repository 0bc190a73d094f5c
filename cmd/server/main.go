/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the costing engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Open the configured store (sqlite, postgres or memory)
  3. Wrap it in the Redis scheme cache when REDIS_ADDR is set
  4. Build the engine, service and API handler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close store and cache connections
  4. Exit

EXAMPLES:
  # Run with file database
  SQLITE_PATH=./data/costing.db ./server

  # Run against PostgreSQL with a Redis cache
  STORE_DRIVER=postgres PG_DSN=postgres://... REDIS_ADDR=localhost:6379 ./server

  # Run with in-memory data, then seed a demo scenario
  STORE_DRIVER=memory ./server
  curl -XPOST localhost:8080/api/scenarios/load -d '{"scenario":"volume-growth"}'

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/: Store implementations
*/
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

	"github.com/warp/costing-engine/api"
	"github.com/warp/costing-engine/cache"
	"github.com/warp/costing-engine/config"
	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/store/memory"
	"github.com/warp/costing-engine/store/postgres"
	"github.com/warp/costing-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Initialize store
	src, seeder, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	var invalidator api.Invalidator
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		cached := cache.NewSource(src, client, cfg.SchemeCacheTTL, cache.WithLogger(logger))
		src, invalidator = cached, cached
		logger.Info("scheme cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	metrics := api.NewMetrics()
	engine, err := costing.NewEngine(
		costing.WithWorkers(cfg.EngineWorkers),
		costing.WithLogger(logger),
		costing.WithStageObserver(metrics.ObserveStage),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	handler := api.NewHandler(costing.NewService(src, engine, logger), api.Options{
		Seeder:  seeder,
		Cache:   invalidator,
		Logger:  logger,
		Metrics: metrics,
		Timeout: cfg.AppRequestTimeout,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      cfg.RateLimitPerMinute,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.Int("workers", cfg.EngineWorkers))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured source, its seeder (nil when the store is
// read-only) and a close function.
func openStore(ctx context.Context, cfg *config.Config) (costing.Source, api.Seeder, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.New(pool), nil, pool.Close, nil
	case config.DriverMemory:
		store := memory.New()
		return store, store, func() {}, nil
	default:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() { _ = store.Close() }, nil
	}
}
