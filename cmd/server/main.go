/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the quota engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logging
  3. Initialize SQLite store
  4. Create API handler and router
  5. Start the generation scheduler (unless disabled)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PORT or 8080)
  -db      SQLite database path (default: DB_PATH or quotas.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/quotas.db"
  SCHEDULER_ENABLED=false ./server -db=":memory:"
  LOG_LEVEL=debug ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled generation
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

	"github.com/warp/quota-engine/api"
	"github.com/warp/quota-engine/config"
	"github.com/warp/quota-engine/logging"
	"github.com/warp/quota-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logging.Init("quota-engine", cfg.LogLevel)
	log := logging.Logger

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, logging.Component("api"))
	router := api.NewRouter(handler, cfg.CORSOrigins)

	var scheduler *api.GenerationScheduler
	if cfg.SchedulerEnabled {
		scheduler = api.NewGenerationScheduler(store, handler.Generator, handler.Rules, cfg.SchedulerSpec, logging.Component("scheduler"))
		if err := scheduler.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start scheduler")
		}
	} else {
		log.Info("Scheduler disabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("db", cfg.DBPath).Infof("Server starting on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
