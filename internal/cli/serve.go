package cli

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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/internal/api"
	"github.com/kiranshivaraju/logsweep/internal/api/handler"
	mw "github.com/kiranshivaraju/logsweep/internal/api/middleware"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.loki.Ready(ctx); err != nil {
		slog.Warn("loki not ready, windows will fail until it is", "url", cfg.Loki.BaseURL, "error", err)
	}

	deps := api.Dependencies{
		HealthHandler:    handler.NewHealthHandler(a.store, a.cache),
		CreateRunHandler: handler.NewCreateRunHandler(a.runs),
		RunStatusHandler: handler.NewRunStatusHandler(a.runs),
		ProcessHandler:   handler.NewProcessWindowHandler(a.processor),
		ResultHandler:    handler.NewGetResultHandler(a.store),
		MetricsHandler:   promhttp.Handler(),
	}
	if a.redis != nil {
		deps.RateLimit = mw.NewRateLimit(a.redis, cfg.RateLimit.PerMinute)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     api.NewRouter(deps),
		ReadTimeout: 15 * time.Second,
		// Processing a window waits on inference, so writes get the inference budget.
		WriteTimeout: cfg.AI.InferenceTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
