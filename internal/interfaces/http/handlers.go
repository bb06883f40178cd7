package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/providers"
)

// handleHealth aggregates provider and storage health. Degraded systems
// still answer 200; only a fully unhealthy feed returns 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := HealthResponse{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).String(),
		Version:   s.deps.Version,
		Providers: make(map[string]providers.Health),
		Storage:   make(map[string]persistence.HealthCheck),
	}

	for _, p := range s.deps.Providers {
		response.Providers[p.Name()] = p.Health(ctx)
	}
	for name, backend := range s.deps.Storage {
		response.Storage[name] = backend.Health(ctx)
	}
	response.Status = overallStatus(response)

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

// overallStatus folds the individual checks into one word. The feed is
// unhealthy only when every provider is down; a single failing provider
// or storage backend degrades it.
func overallStatus(resp HealthResponse) string {
	healthyProviders := 0
	for _, h := range resp.Providers {
		if h.Healthy {
			healthyProviders++
		}
	}
	if len(resp.Providers) > 0 && healthyProviders == 0 {
		return "unhealthy"
	}

	if healthyProviders < len(resp.Providers) {
		return "degraded"
	}
	for _, check := range resp.Storage {
		if !check.Healthy {
			return "degraded"
		}
	}
	return "healthy"
}

func (s *Server) handleLatestScore(w http.ResponseWriter, r *http.Request) {
	if s.deps.Latest == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "latest_store_unavailable",
			"The latest-snapshot store is not configured")
		return
	}

	instrument := mux.Vars(r)["instrument"]
	score, ok, err := s.deps.Latest.LatestScore(r.Context(), instrument)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "latest_store_error", err.Error())
		return
	}
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "score_not_found",
			fmt.Sprintf("No score snapshot stored for %s", instrument))
		return
	}
	s.writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleLatestPrediction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Latest == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "latest_store_unavailable",
			"The latest-snapshot store is not configured")
		return
	}

	instrument := mux.Vars(r)["instrument"]
	result, ok, err := s.deps.Latest.LatestPrediction(r.Context(), instrument)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "latest_store_error", err.Error())
		return
	}
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "prediction_not_found",
			fmt.Sprintf("No locked prediction stored for %s", instrument))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
