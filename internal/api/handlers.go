package api

import (
	"net/http"
	"time"
)

// handleHealth returns server liveness and pool occupancy.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   s.version,
		"uptime":    time.Since(s.startTime).Truncate(time.Second).String(),
		"timestamp": time.Now().Unix(),
		"allocated": s.pool.Allocated(),
		"size":      s.pool.Size(),
	})
}

// bindingResponse is the JSON representation of a pool binding.
type bindingResponse struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// handlePool lists the pool range and its current bindings.
// GET /api/v1/pool
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	var bindings []bindingResponse
	for _, e := range s.pool.Entries() {
		if !e.Assigned() {
			continue
		}
		bindings = append(bindings, bindingResponse{IP: e.IP.String(), MAC: e.MAC.String()})
	}

	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"range_start": s.pool.Start.String(),
		"range_end":   s.pool.End.String(),
		"size":        s.pool.Size(),
		"allocated":   s.pool.Allocated(),
		"utilization": s.pool.Utilization(),
		"bindings":    bindings,
	})
}
