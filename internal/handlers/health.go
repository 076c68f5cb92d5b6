package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health pings the store backing the API.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	statusCode := http.StatusOK

	start := time.Now()
	check := Check{Status: "pass"}
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Str("backend", h.store.Backend()).Msg("health check failed")
		check = Check{Status: "fail", Message: "connection failed"}
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		check.Latency = time.Since(start).String()
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    map[string]Check{h.store.Backend(): check},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

// Root describes the API.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "batepapo",
		Version: version,
		Backend: h.store.Backend(),
	})
}
