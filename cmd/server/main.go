/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the condominium billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, .env, BILLING_* environment)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Connect the Redis rate cache (optional)
  5. Create API handler, router and HTTP server
  6. Start the generation scheduler (optional)
  7. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: config.yaml, optional)
  -db      Overrides database.path; ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and Redis connections

EXAMPLES:
  ./server -config=./config.yaml
  BILLING_SERVER_PORT=3000 BILLING_REDIS_ADDR=localhost:6379 ./server
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/condo-billing/api"
	"github.com/warp/condo-billing/cache"
	"github.com/warp/condo-billing/config"
	"github.com/warp/condo-billing/logging"
	"github.com/warp/condo-billing/metrics"
	"github.com/warp/condo-billing/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "config.yaml", "Path to config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	strategy, err := cfg.TierStrategy()
	if err != nil {
		return fmt.Errorf("invalid water tier strategy: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Rate cache. Redis is optional; without it previews read SQLite.
	ctx := context.Background()
	client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("redis unavailable, rate cache disabled",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		client = nil
	}
	if client != nil {
		defer client.Close()
	}
	rates := cache.NewRateCache(client, store, cfg.Redis.TTL, logger.Named("cache"))

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Cycle:      cfg.Cycle(),
		Strategy:   strategy,
		BillPrefix: cfg.Billing.BillPrefix,
		RateCache:  rates,
		Observer:   metrics.Recorder{},
		Logger:     logger,
	})

	// Create router
	router := api.NewRouter(handler, cfg.CORS.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler := api.NewGenerationScheduler(handler, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Start()
	defer scheduler.Stop()

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path),
			zap.Bool("rate_cache", client != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
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
