package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/formcaptcha/internal/store"
)

// DefaultSweepInterval is used when StartSweeper gets a non-positive interval.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically deletes
// sessions idle for longer than ttl, together with their challenges.
// It stops when ctx is cancelled.
func StartSweeper(ctx context.Context, repo store.Repository, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				SweepExpired(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepExpired deletes every expired session once and returns how many were
// removed.
func SweepExpired(ctx context.Context, repo store.Repository, ttl time.Duration) int {
	expired, err := repo.GetExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("Session sweeper failed to get expired sessions", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("Session sweeper found expired sessions", "count", len(expired))

	deleted := 0
	for _, s := range expired {
		if err := repo.DeleteSession(ctx, s.SessionID); err != nil {
			if ctx.Err() != nil {
				slog.Debug("Session sweeper interrupted", "session_id", s.SessionID, "error", err)
				return deleted
			}
			slog.Warn("Session sweeper failed to delete session",
				"error", err,
				"session_id", s.SessionID)
			continue
		}
		deleted++
	}

	slog.Info("Session sweeper cleanup completed", "cleaned", deleted)
	return deleted
}
