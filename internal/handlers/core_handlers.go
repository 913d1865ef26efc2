package handlers

import (
	"net/http"
	"time"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":      "healthy",
			"server_time": time.Now().UTC(),
		}
		if s.Metrics != nil {
			body["uptime_seconds"] = int64(s.Metrics.Uptime().Seconds())
		}
		writeJSON(w, http.StatusOK, body)
	}
}
