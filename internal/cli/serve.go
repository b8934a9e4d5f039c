package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/httpapi"
	"github.com/loomworks/millflow/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
	Poll     time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

Exposes the transition, dispatch, and monitoring endpoints plus /healthz
and Prometheus /metrics. Dispatching is on-demand: POST /events/process
runs one pass, typically driven by cron. Pass --poll to also run passes
on an internal interval.

Examples:
  millflow serve
  millflow serve --db ./millflow.db --addr :9090
  millflow serve --poll 30s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 0, "run a dispatch pass on this interval (0 disables)")

	return cmd
}

func runServe(opts *ServeOptions) error {
	promReg := prometheus.NewRegistry()

	a, err := loadApp(opts.RootOptions, opts.Database,
		dispatch.WithMetrics(metrics.NewDispatcher(promReg)))
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.HTTPAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	api := httpapi.New(a.store, a.engine, a.dispatcher, promReg, a.cfg.BatchLimit)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Poll > 0 {
		go pollDispatch(ctx, a, opts.Poll)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr, "db", a.cfg.DatabasePath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "http server failed", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitCommandError, "shutdown failed", err)
		}
	}

	return nil
}

// pollDispatch runs a dispatch pass across all tenants on a fixed interval
// until the context is cancelled. A failed pass is logged, not fatal; the
// next tick retries.
func pollDispatch(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := a.dispatcher.ProcessPending(ctx, "", a.cfg.BatchLimit)
			if err != nil {
				slog.Error("poll dispatch pass failed", "error", err)
				continue
			}
			if result.Total > 0 {
				slog.Info("poll dispatch pass",
					"processed", result.Processed,
					"failed", result.Failed,
					"total", result.Total,
				)
			}
		}
	}
}
