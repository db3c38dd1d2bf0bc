package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ashureev/formcaptcha/internal/domain"
	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	session/<sessionID>                  -> domain.Session (JSON)
//	challenge/<sessionID>/<challengeKey> -> domain.ChallengeState (JSON)
const (
	sessionPrefix   = "session/"
	challengePrefix = "challenge/"
)

// BadgerConfig holds configuration for the badger-backed repository.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore implements Repository on an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadger opens a badger-backed repository.
func NewBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func sessionKey(sessionID string) []byte {
	return []byte(sessionPrefix + sessionID)
}

func challengeSessionPrefix(sessionID string) []byte {
	return []byte(challengePrefix + sessionID + "/")
}

func challengeKey(sessionID, key string) []byte {
	return append(challengeSessionPrefix(sessionID), key...)
}

// getJSON decodes the value at k into v. Returns false when k is absent.
func getJSON(txn *badger.Txn, k []byte, v any) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k, err)
	}
	return txn.Set(k, data)
}

// Ping verifies the database is open.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *BadgerStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	var sess domain.Session
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, sessionKey(sessionID), &sess)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

// UpsertSession creates or updates a session record, keeping CreatedAt
// from an existing record.
func (s *BadgerStore) UpsertSession(_ context.Context, sess *domain.Session) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var existing domain.Session
		found, err := getJSON(txn, sessionKey(sess.SessionID), &existing)
		if err != nil {
			return err
		}
		record := *sess
		if found {
			record.CreatedAt = existing.CreatedAt
		}
		return setJSON(txn, sessionKey(sess.SessionID), record)
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// TouchSession updates the last_seen_at timestamp for a session.
func (s *BadgerStore) TouchSession(_ context.Context, sessionID string, lastSeen time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var sess domain.Session
		found, err := getJSON(txn, sessionKey(sessionID), &sess)
		if err != nil {
			return err
		}
		if !found {
			slog.Warn("TouchSession found no session", "session_id", sessionID)
			return nil
		}
		sess.LastSeenAt = lastSeen
		sess.UpdatedAt = time.Now()
		return setJSON(txn, sessionKey(sessionID), sess)
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and all of its challenges.
func (s *BadgerStore) DeleteSession(_ context.Context, sessionID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := challengeSessionPrefix(sessionID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(sessionKey(sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// GetExpiredSessions scans all sessions and returns those idle longer than ttl.
func (s *BadgerStore) GetExpiredSessions(_ context.Context, ttl time.Duration) ([]*domain.Session, error) {
	now := time.Now()
	var expired []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(sessionPrefix), PrefetchValues: true})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sess domain.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				return fmt.Errorf("decode session %s: %w", it.Item().Key(), err)
			}
			if sess.Expired(ttl, now) {
				expired = append(expired, &sess)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan expired sessions: %w", err)
	}
	return expired, nil
}

// GetChallenge retrieves the challenge stored under key for a session.
func (s *BadgerStore) GetChallenge(_ context.Context, sessionID, key string) (*domain.ChallengeState, error) {
	var state domain.ChallengeState
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, challengeKey(sessionID, key), &state)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

// PutChallenge overwrites the challenge stored under key for a session.
func (s *BadgerStore) PutChallenge(_ context.Context, sessionID, key string, state domain.ChallengeState) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, challengeKey(sessionID, key), state)
	})
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// DeleteChallenge removes the challenge stored under key.
func (s *BadgerStore) DeleteChallenge(_ context.Context, sessionID, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(challengeKey(sessionID, key))
	})
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

var _ Repository = (*BadgerStore)(nil)
