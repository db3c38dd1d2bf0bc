// Package identity provides anonymous per-browser session identity.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/formcaptcha/internal/domain"
	"github.com/ashureev/formcaptcha/internal/store"
)

const (
	SessionCookieName   = "captcha_sid"
	sessionCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

// SessionIDFromContext extracts the session ID from the request context.
// It returns "" when no session has been started.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func isValidSessionID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func setSessionCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func getOrCreateSessionID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && isValidSessionID(c.Value) {
		setSessionCookie(w, c.Value, !isDev)
		return c.Value
	}

	id := uuid.NewString()
	setSessionCookie(w, id, !isDev)
	return id
}

// ensureSession creates the session row on first sight and refreshes
// last_seen_at afterwards.
func ensureSession(ctx context.Context, repo store.Repository, sessionID string) error {
	now := time.Now()

	sess, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess != nil {
		if err := repo.TouchSession(ctx, sessionID, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	}

	if err := repo.UpsertSession(ctx, &domain.Session{
		SessionID:  sessionID,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Middleware issues or reads the session cookie, makes sure the session is
// recorded in repo, and injects the session ID into the request context.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := getOrCreateSessionID(w, r, isDev)

			if err := ensureSession(r.Context(), repo, sessionID); err != nil {
				slog.Error("Failed to start session", "error", err, "session_id", sessionID)
				http.Error(w, `{"error":"failed to start session"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
