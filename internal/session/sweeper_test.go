package session

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/formcaptcha/internal/domain"
)

func TestSweepExpiredRemovesIdleSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Now().Add(-3 * time.Hour)
	now := time.Now()
	for _, s := range []*domain.Session{
		{SessionID: "idle", LastSeenAt: old, CreatedAt: old, UpdatedAt: old},
		{SessionID: "active", LastSeenAt: now, CreatedAt: now, UpdatedAt: now},
	} {
		if err := repo.UpsertSession(ctx, s); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
		if err := repo.PutChallenge(ctx, s.SessionID, "k", domain.ChallengeState{Question: "q", Answer: "a"}); err != nil {
			t.Fatalf("PutChallenge failed: %v", err)
		}
	}

	if n := SweepExpired(ctx, repo, time.Hour); n != 1 {
		t.Fatalf("expected 1 session swept, got %d", n)
	}

	if sess, _ := repo.GetSession(ctx, "idle"); sess != nil {
		t.Fatal("expected idle session to be deleted")
	}
	if state, _ := repo.GetChallenge(ctx, "idle", "k"); state != nil {
		t.Fatal("expected idle session challenges to be deleted")
	}
	if state, _ := repo.GetChallenge(ctx, "active", "k"); state == nil {
		t.Fatal("expected active session challenge to survive")
	}

	if n := SweepExpired(ctx, repo, time.Hour); n != 0 {
		t.Fatalf("expected nothing left to sweep, got %d", n)
	}
}

func TestStartSweeperStopsOnCancel(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	old := time.Now().Add(-3 * time.Hour)
	if err := repo.UpsertSession(ctx, &domain.Session{SessionID: "idle", LastSeenAt: old, CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	StartSweeper(ctx, repo, time.Hour, 10*time.Millisecond)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := repo.GetSession(context.Background(), "idle")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if sess == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper did not remove the idle session")
}
