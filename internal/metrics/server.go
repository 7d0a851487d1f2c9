package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionInfo describes the running session for the /session endpoint.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Category  string    `json:"category"`
	Dir       string    `json:"dir"`
	Phase     string    `json:"phase"`
	StartedAt time.Time `json:"started_at"`
}

// SessionInfoFunc supplies the current session state for the /session
// endpoint. Called per request; must be safe for concurrent use.
type SessionInfoFunc func() SessionInfo

// Server provides HTTP endpoints for Prometheus metrics, health checks and
// session status.
type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer creates a new metrics server serving the given gatherer. A nil
// gatherer falls back to the default registry. sessionInfo may be nil, in
// which case the /session endpoint is not registered.
func NewServer(addr string, gatherer prometheus.Gatherer, sessionInfo SessionInfoFunc, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	// Ready check (same as health for now)
	mux.HandleFunc("/ready", healthHandler)
	mux.HandleFunc("/readyz", healthHandler)

	// Session status endpoint
	if sessionInfo != nil {
		mux.HandleFunc("/session", sessionHandler(sessionInfo, logger))
	}

	return &Server{
		addr:   addr,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
	}
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// sessionHandler returns the current session state as JSON.
func sessionHandler(sessionInfo SessionInfoFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sessionInfo()); err != nil {
			logger.Debug("session_endpoint_encode_error", "error", err)
		}
	}
}

// Start binds the listen address and serves in a goroutine. Binding
// happens synchronously so an occupied port fails here, not in a log
// line nobody reads.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.logger.Info("metrics_server_starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound listen address once Start has succeeded, or the
// configured address before that. With a ":0" port the bound form is the
// only useful one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
