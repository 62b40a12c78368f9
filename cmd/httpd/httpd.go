// Package httpd implements the HTTP API server command.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/bookwatch/cmd/common"
	"github.com/jonesrussell/bookwatch/internal/api"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/scheduler"
)

// === Constants ===

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// Command returns the httpd command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Run the HTTP API server",
		Long: `The httpd command serves the read-only API over crawl snapshots and
scheduler state, exposes Prometheus metrics and runs the embedded
scheduler so jobs keep firing while the API is up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Start(cmd.Context())
		},
	}
}

// === Main Entry Point ===

// Start starts the HTTP server and runs until interrupted.
// It handles graceful shutdown on SIGINT or SIGTERM signals.
func Start(ctx context.Context) error {
	// Phase 1: Initialize dependencies
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	// Phase 2: Connect to the database
	db, err := database.NewPostgresConnection(deps.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	jobs := database.NewJobRepository(db)
	executions := database.NewExecutionRepository(db)
	snapshots := database.NewSnapshotStore(db)

	// Phase 3: Build the crawl pipeline
	pipeline, err := common.NewPipeline(deps, snapshots)
	if err != nil {
		return fmt.Errorf("failed to build crawl pipeline: %w", err)
	}

	// Phase 4: Start the embedded scheduler
	sched := startScheduler(ctx, deps, jobs, executions, pipeline)

	// Phase 5: Start HTTP server
	apiDeps := api.Deps{
		Jobs:       jobs,
		Executions: executions,
		Snapshots:  snapshots,
		Breaker:    pipeline.Breaker,
		Gatherer:   pipeline.PromRegistry,
	}
	if sched != nil {
		// Assigning a nil *Scheduler would make the interface non-nil and
		// defeat the handlers' availability checks.
		apiDeps.Scheduler = sched
	}
	server, errChan := startHTTPServer(deps, apiDeps)

	// Phase 6: Run server until interrupted
	return runServerUntilInterrupt(deps.Logger, server, sched, errChan)
}

// === Scheduler Setup ===

// startScheduler builds and starts the scheduler. Failure to start is not
// fatal: the API still serves, with the scheduler endpoints degraded to 503.
func startScheduler(
	ctx context.Context,
	deps common.CommandDeps,
	jobs database.JobStore,
	executions database.ExecutionStore,
	pipeline *common.Pipeline,
) *scheduler.Scheduler {
	sched := scheduler.NewScheduler(
		deps.Logger,
		jobs,
		executions,
		pipeline.Registry,
		pipeline.Metrics,
		deps.Config.Scheduler,
		scheduler.HandlerDeps{Runner: pipeline.Orchestrator, Logger: deps.Logger},
	)
	if err := sched.Start(ctx); err != nil {
		deps.Logger.Warn("Scheduler failed to start, serving API without it", "error", err)
		return nil
	}
	return sched
}

// === Server Setup ===

// startHTTPServer creates and starts the HTTP server.
// Returns the server and an error channel for server errors.
func startHTTPServer(deps common.CommandDeps, apiDeps api.Deps) (*http.Server, chan error) {
	server := api.StartHTTPServer(deps.Logger, apiDeps, &deps.Config.Server)

	// Start server in goroutine
	deps.Logger.Info("Starting HTTP server", "addr", deps.Config.Server.Address)
	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	return server, errChan
}

// runServerUntilInterrupt runs the server until interrupted by signal or error.
func runServerUntilInterrupt(
	log logger.Interface,
	server *http.Server,
	sched *scheduler.Scheduler,
	errChan chan error,
) error {
	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal or error
	select {
	case serverErr := <-errChan:
		log.Error("Server error", "error", serverErr)
		return fmt.Errorf("server error: %w", serverErr)
	case sig := <-sigChan:
		return shutdownServer(log, server, sched, sig)
	}
}

// shutdownServer performs graceful shutdown of the server and scheduler.
func shutdownServer(
	log logger.Interface,
	server *http.Server,
	sched *scheduler.Scheduler,
	sig os.Signal,
) error {
	log.Info("Shutdown signal received", "signal", sig.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Stop scheduler first so no execution writes race the server teardown
	if sched != nil {
		log.Info("Stopping scheduler")
		if err := sched.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
	}

	// Stop HTTP server
	log.Info("Stopping HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop server", "error", err)
		return fmt.Errorf("failed to stop server: %w", err)
	}

	log.Info("Server stopped successfully")
	return nil
}
