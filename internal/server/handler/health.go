package handler

import (
	"net/http"
	"time"
)

// HealthHandler answers liveness probes. It touches no backing store; a
// healthy answer means only that the process is serving.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler for a process started at the
// given instant.
func NewHealthHandler(startedAt time.Time) *HealthHandler {
	return &HealthHandler{startedAt: startedAt}
}

// HealthCheck reports liveness and process uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ctfd",
		"uptime":  now.Sub(h.startedAt).Round(time.Second).String(),
		"time":    now.Format(time.RFC3339),
	})
}
