// Package api provides the read-only HTTP status API: health, pool bindings,
// audit journal queries and the Prometheus endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/audit"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
)

// Server is the HTTP API server for pxe-dhcpd.
type Server struct {
	listen     string
	pool       *pool.Pool
	auditLog   *audit.Log
	logger     *slog.Logger
	httpServer *http.Server
	startTime  time.Time
	version    string
}

// ServerOption configures optional Server fields.
type ServerOption func(*Server)

// WithAuditLog enables the audit query endpoints.
func WithAuditLog(l *audit.Log) ServerOption {
	return func(s *Server) { s.auditLog = l }
}

// WithVersion sets the server version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new API server.
func NewServer(listen string, p *pool.Pool, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		listen:    listen,
		pool:      p,
		logger:    logger,
		startTime: time.Now(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the API server to its configured address and prepares routes.
// Call this synchronously to catch port conflicts before starting background serve.
func (s *Server) Listen() (net.Listener, error) {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return nil, fmt.Errorf("binding API server to %s: %w", s.listen, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return newMetricsMiddleware(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/pool", s.handlePool)

	mux.HandleFunc("GET /api/v1/audit", s.handleAuditQuery)
	mux.HandleFunc("GET /api/v1/audit/export", s.handleAuditExportCSV)
	mux.HandleFunc("GET /api/v1/audit/stats", s.handleAuditStats)
}

// JSONResponse writes a JSON response with the given status code.
func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
