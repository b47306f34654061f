package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/audit"
)

// parseAuditQuery reads ip, mac, event, limit, at, from and to. Times are
// RFC 3339; unparseable values are ignored.
func parseAuditQuery(q url.Values) audit.QueryParams {
	params := audit.QueryParams{
		IP:    q.Get("ip"),
		MAC:   q.Get("mac"),
		Event: q.Get("event"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	for key, dst := range map[string]*time.Time{"at": &params.At, "from": &params.From, "to": &params.To} {
		if v := q.Get(key); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				*dst = t
			}
		}
	}
	return params
}

// handleAuditQuery searches the audit log with query parameters.
// GET /api/v1/audit?ip=&mac=&event=&from=&to=&at=&limit=
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		JSONError(w, http.StatusServiceUnavailable, "audit_disabled", "audit log not available")
		return
	}

	records, err := s.auditLog.Query(parseAuditQuery(r.URL.Query()))
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "query_error", err.Error())
		return
	}

	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// handleAuditExportCSV exports audit log records as CSV.
// GET /api/v1/audit/export?ip=&mac=&event=&from=&to=&at=&limit=
func (s *Server) handleAuditExportCSV(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		JSONError(w, http.StatusServiceUnavailable, "audit_disabled", "audit log not available")
		return
	}

	records, err := s.auditLog.Query(parseAuditQuery(r.URL.Query()))
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "query_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit_log.csv")
	if err := audit.WriteCSV(w, records); err != nil {
		s.logger.Error("failed to write CSV export", "error", err)
	}
}

// handleAuditStats returns summary statistics about the audit log.
// GET /api/v1/audit/stats
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		JSONError(w, http.StatusServiceUnavailable, "audit_disabled", "audit log not available")
		return
	}

	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"total_records": s.auditLog.Count(),
	})
}
