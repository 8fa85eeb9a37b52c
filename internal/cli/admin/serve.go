package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/config"
	"github.com/cloo-solutions/helpdesk/internal/jobs"
	"github.com/cloo-solutions/helpdesk/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the helpdesk API server, index the knowledge base and keep it fresh in the background",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides HELPDESK_PORT)")
	cmd.Flags().Bool("no-reindex", false, "Skip the background re-index worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.HasSentry() {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Debug:       cfg.Debug,
			Logger:      logger,
		})
		if err != nil {
			logger.Warn("telemetry.init_failed", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	app := NewApp(ctx, cfg, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("app.close_failed", zap.Error(err))
		}
	}()

	if !cfg.ReindexPerRequest {
		if _, err := app.Indexer.Reindex(ctx); err != nil {
			logger.Error("index.initial_failed", zap.Error(err))
		}

		if noReindex, _ := cmd.Flags().GetBool("no-reindex"); !noReindex && cfg.ReindexInterval > 0 {
			worker := jobs.NewWorker("reindex", app.Indexer, cfg.ReindexInterval, logger)
			go worker.Start(ctx)
			defer worker.Stop()
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server.exited")
	return nil
}
