// Package graph serves the social graph analyses as a JSON HTTP API.
//
// Every handler reads the shared network under its read lock, so analyses can
// run concurrently with each other while MCP mutations wait their turn.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hurttlocker/sociograph/internal/cluster"
	"github.com/hurttlocker/sociograph/internal/metrics"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/store"
)

// ServerConfig holds settings for the API server.
type ServerConfig struct {
	Network *network.Guarded
	// Store is optional; when set /api/stats includes the stored snapshot.
	Store store.Store
	Port  int

	// ConnectionType and ClusterMode are used when a request does not name one.
	ConnectionType string
	ClusterMode    cluster.Mode

	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
}

type server struct {
	cfg ServerConfig
}

// NewRouter builds the API routes.
func NewRouter(cfg ServerConfig) http.Handler {
	if cfg.Network == nil {
		cfg.Network = network.NewGuarded(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.ConnectionType == "" {
		cfg.ConnectionType = "follows"
	}
	s := &server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(newLoggingMiddleware(cfg.Logger, cfg.Metrics))

	r.Route("/api", func(r chi.Router) {
		r.Get("/clusters", s.handleClusters)
		r.Get("/posts", s.handlePosts)
		r.Get("/wordfreq", s.handleWordFreq)
		r.Get("/trending", s.handleTrending)
		r.Get("/users/{id}", s.handleUser)
		r.Get("/stats", s.handleStats)
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	return r
}

// Serve runs the API server until ctx is cancelled.
func Serve(ctx context.Context, cfg ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("http api listening", slog.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
