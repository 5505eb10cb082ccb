package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"labcore/internal/adapters/labapi"
)

const shutdownTimeout = 10 * time.Second

// newHTTPHandler mounts the API together with the metrics endpoint matching
// the configured backend.
func newHTTPHandler(ctx context.Context, a *app) (http.Handler, error) {
	hopts := []labapi.Option{labapi.WithLogger(a.logger.With("component", "http"))}
	if a.registry != nil {
		hopts = append(hopts, labapi.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}
	archive, err := a.archive(ctx)
	if err != nil {
		return nil, err
	}
	hopts = append(hopts, labapi.WithArchive(archive))
	api := labapi.NewHandler(a.svc, hopts...)
	if a.cfg.Metrics.Backend != "expvar" {
		return api, nil
	}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Mount("/", api)
	return r, nil
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, opts, func(a *app, _ printer) error {
				if addr == "" {
					addr = a.cfg.HTTP.Addr
				}
				handler, err := newHTTPHandler(ctx, a)
				if err != nil {
					return err
				}
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("listen %s: %w", addr, err)
				}
				srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				a.logger.Info("http server listening", "addr", ln.Addr().String(), "storage", a.cfg.Storage.Driver)

				errCh := make(chan error, 1)
				go func() { errCh <- srv.Serve(ln) }()
				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				a.logger.Info("http server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}
