package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"incidentdb/internal/adapters/httpapi"
	"incidentdb/internal/core"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		saveExit bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbook over HTTP",
		Long: `serve loads the workbook and exposes the /api/v1 routes, Prometheus
metrics on /metrics and expvar counters on /debug/vars.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			api := httpapi.NewHandler(a.svc,
				httpapi.WithLogger(core.NewLogrusLogger(log)),
				httpapi.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
			)
			mux := http.NewServeMux()
			mux.Handle("/debug/vars", expvar.Handler())
			mux.Handle("/", api)
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.ListenAddr).Info("listening")
				errCh <- srv.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("shutdown")
			}
			if saveExit {
				if err := a.svc.SaveWorkbook(shutdownCtx); err != nil {
					return err
				}
			}
			log.Info("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&saveExit, "save-on-exit", false, "write the workbook back on shutdown")
	return cmd
}
