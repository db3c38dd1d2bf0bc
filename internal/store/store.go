// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/formcaptcha/internal/domain"
)

// Repository defines the interface for persisting sessions and the
// challenge records scoped to them.
type Repository interface {
	// GetSession retrieves a session by ID. Returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession creates or updates a session record.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// TouchSession updates the last_seen_at timestamp for a session.
	TouchSession(ctx context.Context, sessionID string, lastSeen time.Time) error

	// DeleteSession removes a session and every challenge stored under it.
	DeleteSession(ctx context.Context, sessionID string) error

	// GetExpiredSessions retrieves sessions idle for longer than ttl.
	GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error)

	// GetChallenge retrieves the challenge stored under key for a session.
	// Returns nil, nil when absent.
	GetChallenge(ctx context.Context, sessionID, key string) (*domain.ChallengeState, error)

	// PutChallenge overwrites the challenge stored under key for a session.
	PutChallenge(ctx context.Context, sessionID, key string, state domain.ChallengeState) error

	// DeleteChallenge removes the challenge stored under key. Deleting an
	// absent challenge is not an error.
	DeleteChallenge(ctx context.Context, sessionID, key string) error

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Open creates the repository for the named backend.
// path is the sqlite database file or the badger directory.
func Open(backend, path string) (Repository, error) {
	switch backend {
	case BackendSQLite:
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := NewBadger(BadgerConfig{Path: path, SyncWrites: true})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
