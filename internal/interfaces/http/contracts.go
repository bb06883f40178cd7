package http

import (
	"time"

	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/providers"
)

// HealthResponse is the GET /health envelope.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Version   string    `json:"version,omitempty"`

	// Per-upstream feed status, including circuit state.
	Providers map[string]providers.Health `json:"providers"`

	// Per-backend storage status: postgres, redis, clickhouse.
	Storage map[string]persistence.HealthCheck `json:"storage"`
}

// ErrorResponse is the standard error envelope for all non-2xx bodies.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
