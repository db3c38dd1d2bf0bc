package domain

import (
	"time"
)

// Session is one user agent's server-side session.
type Session struct {
	SessionID  string    `json:"session_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastSeenAt) > ttl
}
