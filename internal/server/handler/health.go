package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness check.
type HealthHandler struct {
	mode    string
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler for a process started now.
func NewHealthHandler(mode string) *HealthHandler {
	return &HealthHandler{mode: mode, started: time.Now(), now: time.Now}
}

// HealthCheck reports that the process is up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"uptime_s":  int64(now.Sub(h.started).Seconds()),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}
