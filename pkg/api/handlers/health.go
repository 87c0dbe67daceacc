package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/store"
)

// HealthCheckTimeout bounds how long a store health check is allowed to run
// before a readiness probe gives up and reports unhealthy.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store store.HealthStore
}

// NewHealthHandler creates a health handler backed by the governance
// persistence layer's health check.
func NewHealthHandler(s store.HealthStore) *HealthHandler {
	return &HealthHandler{store: s}
}

// Liveness handles GET /health - always succeeds once the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "chronovm",
	}))
}

// Readiness handles GET /health/ready - checks the persistence backend.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("governance store not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.Healthcheck(ctx)
	latency := time.Since(start)

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"store_latency": latency.String(),
	}))
}
