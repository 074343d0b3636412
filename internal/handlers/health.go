package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/neonchat/neonchat/internal/models"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy" or "degraded"
	Version   string            `json:"version"`
	Region    string            `json:"region,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	Checks    map[string]Check  `json:"checks"`
	Relay     *models.RoomStats `json:"relay,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Health handles the health check endpoint. Optional collaborators that are
// not configured are skipped; the relay itself must answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Relay event loop
	var relay *models.RoomStats
	relayStart := time.Now()
	if stats, err := h.relay.Stats(ctx); err != nil {
		checks["relay"] = Check{Status: "fail", Message: err.Error()}
		allHealthy = false
	} else {
		checks["relay"] = Check{Status: "pass", Latency: time.Since(relayStart).String()}
		relay = &stats
	}

	// Account store
	if h.accounts != nil {
		storeStart := time.Now()
		if err := h.accounts.Ping(ctx); err != nil {
			checks["store"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["store"] = Check{Status: "pass", Latency: time.Since(storeStart).String()}
		}
	} else {
		checks["store"] = Check{Status: "skip", Message: "not configured"}
	}

	// Redis
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	} else {
		checks["redis"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Relay:     relay,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the API info response.
type RootResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Websocket string `json:"websocket"`
	Payments  bool   `json:"payments"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "NeonChat",
		Version:   version,
		Websocket: "/ws",
		Payments:  h.cfg.PaymentsEnabled(),
	})
}
