// Package httpserver exposes the two HTTP endpoints the bot needs for
// operations: /healthz for liveness probes and /metrics for Prometheus
// scraping. There is no admin or dashboard surface; this process has
// nothing else to serve.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the HTTP mux for /healthz and /metrics.
func New() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: New()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
