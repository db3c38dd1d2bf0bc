// Package session binds challenge storage to the user session of a request.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/formcaptcha/internal/captcha"
	"github.com/ashureev/formcaptcha/internal/domain"
	"github.com/ashureev/formcaptcha/internal/identity"
	"github.com/ashureev/formcaptcha/internal/store"
)

// Manager hands out per-session challenge stores backed by one repository.
type Manager struct {
	repo   store.Repository
	locks  *keyLock
	logger *slog.Logger
}

// NewManager creates a manager. A nil logger means slog.Default().
func NewManager(repo store.Repository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, locks: newKeyLock(), logger: logger}
}

// Scope returns the challenge store of the session carried by ctx. It fails
// with domain.ErrSessionNotStarted when the request has no session.
func (m *Manager) Scope(ctx context.Context) (*Scope, error) {
	sessionID := identity.SessionIDFromContext(ctx)
	if sessionID == "" {
		return nil, domain.ErrSessionNotStarted
	}
	return m.ForSession(sessionID), nil
}

// ForSession returns the challenge store of an explicit session ID.
func (m *Manager) ForSession(sessionID string) *Scope {
	return &Scope{sessionID: sessionID, m: m}
}

// Scope is the challenge store of a single session.
type Scope struct {
	sessionID string
	m         *Manager
}

// SessionID returns the session the scope is bound to.
func (s *Scope) SessionID() string {
	return s.sessionID
}

func (s *Scope) check() error {
	if s == nil || s.sessionID == "" {
		return domain.ErrSessionNotStarted
	}
	return nil
}

// Load implements captcha.Store.
func (s *Scope) Load(ctx context.Context, key string) (*domain.ChallengeState, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	state, err := s.m.repo.GetChallenge(ctx, s.sessionID, key)
	if err != nil {
		return nil, fmt.Errorf("get challenge for session %s: %w", s.sessionID, err)
	}
	return state, nil
}

// Save implements captcha.Store.
func (s *Scope) Save(ctx context.Context, key string, state domain.ChallengeState) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.m.repo.PutChallenge(ctx, s.sessionID, key, state); err != nil {
		return fmt.Errorf("put challenge for session %s: %w", s.sessionID, err)
	}
	return nil
}

// Delete implements captcha.Store.
func (s *Scope) Delete(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.m.repo.DeleteChallenge(ctx, s.sessionID, key); err != nil {
		return fmt.Errorf("delete challenge for session %s: %w", s.sessionID, err)
	}
	return nil
}

// Lock implements captcha.Store. Locks are shared by every Scope of the same
// session created from the same Manager.
func (s *Scope) Lock(key string) func() {
	return s.m.locks.Lock(s.sessionID + "\x00" + key)
}

var _ captcha.Store = (*Scope)(nil)
