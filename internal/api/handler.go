// Package api provides HTTP handlers for the captcha forms service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/formcaptcha/internal/domain"
	"github.com/ashureev/formcaptcha/internal/session"
	"github.com/ashureev/formcaptcha/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:     repo,
		sessions: sessions,
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logFailure logs err at the level it deserves and returns the message that
// is safe to show to the client.
func (h *Handler) logFailure(r *http.Request, err error) string {
	if errors.Is(err, domain.ErrSessionNotStarted) {
		h.logger.Error("Captcha used without a session",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		return "session not started"
	}
	h.logger.Error("Captcha operation failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path)
	return "internal error"
}

// fail writes a JSON 500 for err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	Error(w, http.StatusInternalServerError, h.logFailure(r, err))
}
