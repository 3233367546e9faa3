package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/cachesync/internal/logfields"
	"git.home.luguber.info/inful/cachesync/internal/runner"
)

// HTTPServer exposes health, metrics and last-run status.
type HTTPServer struct {
	srv *http.Server
}

// newHTTPServer builds the daemon's HTTP surface. lastResult returns the most
// recent run result, or nil before the first run.
func newHTTPServer(addr string, registry *prom.Registry, lastResult func() *runner.Result) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newMux(registry, lastResult),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func newMux(registry *prom.Registry, lastResult func() *runner.Result) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		res := lastResult()
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			slog.Warn("Failed to encode status response", logfields.Error(err))
		}
	})
	return mux
}

// Start serves until Stop is called. Errors other than a clean close are logged.
func (h *HTTPServer) Start() {
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", h.srv.Addr))
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", logfields.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
