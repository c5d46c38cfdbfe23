// Package metrics provides Prometheus instrumentation and the HTTP server exposing it
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server provides HTTP server for Prometheus metrics
type Server struct {
	port    int
	server  *http.Server
	log     zerolog.Logger
	started time.Time
	active  atomic.Int64
}

// NewServer creates a new metrics server.
// Port 0 picks a free port.
func NewServer(port int, log zerolog.Logger) *Server {
	return &Server{
		port: port,
		log:  log.With().Str("component", "metrics_server").Logger(),
	}
}

// RegisterHandlers registers the metrics and health endpoints on an HTTP mux
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
}

// RunStarted marks an analysis run as in flight
func (s *Server) RunStarted() {
	s.active.Add(1)
}

// RunFinished marks an analysis run as done
func (s *Server) RunFinished() {
	s.active.Add(-1)
}

// Start starts the metrics HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.RegisterHandlers(mux)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.started = time.Now()

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting metrics server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Port returns the listening port
func (s *Server) Port() int {
	return s.port
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down metrics server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	s.log.Info().Msg("Metrics server shutdown complete")
	return nil
}

type healthResponse struct {
	Status       string  `json:"status"`
	ActiveRuns   int64   `json:"active_runs"`
	UptimeSecond float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		ActiveRuns: s.active.Load(),
	}
	if !s.started.IsZero() {
		resp.UptimeSecond = time.Since(s.started).Seconds()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write health response")
	}
}
