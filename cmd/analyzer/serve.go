package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/romangod6/sitemap-clusters/internal/api"
	"github.com/romangod6/sitemap-clusters/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the scheduler for recurring analyses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Initialize storage
		store, err := storage.New(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer store.Close()

		runner := api.NewRunner(store, buildAnalyzer(cfg, logger, true), cfg.Log.Dir, logger)
		if n, err := runner.RecoverInterrupted(cmd.Context()); err != nil {
			return err
		} else if n > 0 {
			logger.Warn().Int("jobs", n).Msg("Reset analyses interrupted by a previous shutdown")
		}

		// Initialize API server
		server := api.NewServer(cfg.Server.Port, store, runner, logger)

		// Setup periodic analyses
		ticker := time.NewTicker(cfg.SchedulerInterval())
		defer ticker.Stop()
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			for {
				select {
				case <-ticker.C:
					logger.Debug().Msg("Checking scheduled analyses")
					runner.RunDue(ctx, cfg.Scheduler.MaxConcurrent)
				case <-ctx.Done():
					return
				}
			}
		}()

		// Start the API server
		serverErr := make(chan error, 1)
		go func() {
			logger.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Wait for shutdown
		return waitForShutdown(cancel, server, serverErr)
	},
}

func waitForShutdown(cancel context.CancelFunc, server *api.Server, serverErr <-chan error) error {
	// Handle system signals for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-sigChan:
		logger.Info().Msg("Shutting down...")
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("API server failed")
	}
	cancel()

	// Graceful server shutdown
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down server")
		return err
	}
	logger.Info().Msg("Server shut down gracefully")
	return runErr
}
