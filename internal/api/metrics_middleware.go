package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
)

// metricsMiddleware wraps an http.Handler to record request metrics.
type metricsMiddleware struct {
	next http.Handler
}

func newMetricsMiddleware(next http.Handler) http.Handler {
	return &metricsMiddleware{next: next}
}

func (m *metricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	m.next.ServeHTTP(sw, r)

	path := normalizePath(r.URL.Path)
	metrics.APIRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
	metrics.APIRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
}

// statusWriter captures the HTTP status code.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// normalizePath keeps label cardinality bounded: unknown paths share one label.
func normalizePath(path string) string {
	switch path {
	case "/metrics", "/api/v1/health", "/api/v1/pool",
		"/api/v1/audit", "/api/v1/audit/export", "/api/v1/audit/stats":
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	return "other"
}
