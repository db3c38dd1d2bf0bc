package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/formcaptcha/internal/store"
)

// HealthHandler reports storage health.
type HealthHandler struct {
	repo    store.Repository
	backend string
}

// NewHealthHandler creates a health handler for repo.
func NewHealthHandler(repo store.Repository, backend string) *HealthHandler {
	return &HealthHandler{repo: repo, backend: backend}
}

// RegisterHealth registers the health and metrics endpoints.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
}

// Health pings the repository.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"backend": h.backend,
			"error":   err.Error(),
		})
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": h.backend,
	})
}
