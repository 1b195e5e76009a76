package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// StatusProvider is an interface for getting agent status.
type StatusProvider interface {
	Status() map[string]any
}

// Controller triggers config operations on demand.
type Controller interface {
	// Refresh fetches from the remote, bypassing the cache.
	Refresh(ctx context.Context) (map[string]any, error)
	// ClearCache deletes the cached copy and resets in-memory state.
	ClearCache(ctx context.Context)
}

// MetricsProvider is an interface that renders metrics in text format.
type MetricsProvider interface {
	MetricsText() string
}

// Server is a lightweight HTTP API that exposes the current configuration
// and lets operators force a refresh or clear the cache.
type Server struct {
	addr       string
	logger     *slog.Logger
	status     StatusProvider
	controller Controller
	metrics    MetricsProvider
	httpSrv    *http.Server
}

// NewServer creates a new API server. controller and metrics may be nil.
func NewServer(addr string, logger *slog.Logger, status StatusProvider, controller Controller, metrics MetricsProvider) *Server {
	return &Server{
		addr:       addr,
		logger:     logger,
		status:     status,
		controller: controller,
		metrics:    metrics,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.controller != nil {
		mux.HandleFunc("POST /refresh", s.handleRefresh)
		mux.HandleFunc("POST /cache/clear", s.handleClearCache)
	}
	if s.metrics != nil {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}
	return mux
}

// Start starts the HTTP server in a goroutine. Call Stop() to shut it down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Refresh waits on the remote, so allow more than the read side.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.addr)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("stopping API server")
	return s.httpSrv.Shutdown(ctx)
}

// handleStatus returns the current values, version and fetch date.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

// handleHealthz is a simple liveness probe for the agent itself.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRefresh forces a remote fetch. A fetch that fails on both the
// remote and the cache answers 502.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.Refresh(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleClearCache drops the cached copy.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.controller.ClearCache(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

// handleMetrics returns Prometheus/OpenMetrics text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := w.Write([]byte(s.metrics.MetricsText())); err != nil {
		s.logger.Error("failed to write metrics response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}
