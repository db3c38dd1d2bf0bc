// Package captcha implements a session-backed challenge/response form element.
//
// A Controller owns exactly one challenge, identified by a session key. The
// challenge is generated lazily, kept stable until it is solved, and stays
// solved across requests until Clear is called.
package captcha

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/formcaptcha/internal/domain"
)

// Store persists challenge records for one user session.
type Store interface {
	// Load returns the record stored under key, or nil when there is none.
	Load(ctx context.Context, key string) (*domain.ChallengeState, error)

	// Save overwrites the record stored under key.
	Save(ctx context.Context, key string, state domain.ChallengeState) error

	// Delete removes the record stored under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Lock serializes read-modify-write sequences on key within the session.
	// The returned function releases the lock.
	Lock(key string) (unlock func())
}

// AnswersMatch is the comparison rule for submitted answers: exact string
// equality after trimming surrounding whitespace from both sides.
func AnswersMatch(submitted, answer string) bool {
	return strings.TrimSpace(submitted) == strings.TrimSpace(answer)
}

// Controller drives one challenge through its lifecycle. It is created per
// request and is not safe for concurrent use; concurrent requests for the
// same session and key are serialized through Store.Lock.
type Controller struct {
	key    string
	store  Store
	gen    Generator
	logger *slog.Logger

	generated bool
	state     domain.ChallengeState
}

// NewController creates a controller for the challenge stored under key.
// A nil store makes every operation fail with domain.ErrSessionNotStarted.
func NewController(key string, store Store, gen Generator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{key: key, store: store, gen: gen, logger: logger}
}

// Key returns the session key of the challenge.
func (c *Controller) Key() string {
	return c.key
}

// Generated reports whether the controller holds a materialized challenge.
func (c *Controller) Generated() bool {
	return c.generated
}

// Solved reports whether the challenge is solved, as of the last load or
// verification.
func (c *Controller) Solved() bool {
	return c.state.Solved
}

// State returns a copy of the in-memory record.
func (c *Controller) State() domain.ChallengeState {
	return c.state
}

// EnsureGenerated loads the stored challenge or, if there is none, generates
// and persists a new unsolved one. Later calls on the same controller are
// no-ops.
func (c *Controller) EnsureGenerated(ctx context.Context) error {
	if c.generated {
		return nil
	}
	if c.store == nil {
		return domain.ErrSessionNotStarted
	}

	unlock := c.store.Lock(c.key)
	defer unlock()
	return c.ensureGeneratedLocked(ctx)
}

func (c *Controller) ensureGeneratedLocked(ctx context.Context) error {
	if c.generated {
		return nil
	}

	stored, err := c.store.Load(ctx, c.key)
	if err != nil {
		return fmt.Errorf("load challenge %s: %w", c.key, err)
	}
	if stored != nil {
		c.state = *stored
		c.generated = true
		challengesLoaded.Inc()
		return nil
	}

	if c.gen == nil {
		return fmt.Errorf("generate challenge %s: no generator configured", c.key)
	}
	question, answer, err := c.gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate challenge %s: %w", c.key, err)
	}
	if question == "" || answer == "" {
		return fmt.Errorf("generate challenge %s: %w", c.key, ErrIncompleteChallenge)
	}

	state := domain.ChallengeState{Question: question, Answer: answer}
	if err := c.store.Save(ctx, c.key, state); err != nil {
		return fmt.Errorf("save challenge %s: %w", c.key, err)
	}

	c.state = state
	c.generated = true
	challengesGenerated.Inc()
	c.logger.Debug("Challenge generated", "key", c.key)
	return nil
}

// Verify reports whether the challenge is solved, checking submitted against
// the stored answer if it is not solved yet. A match is persisted so the
// challenge stays solved on later requests; once solved, submitted is
// ignored. A mismatch leaves the stored record untouched.
func (c *Controller) Verify(ctx context.Context, submitted string) (bool, error) {
	if c.state.Solved {
		verifications.WithLabelValues("sticky").Inc()
		return true, nil
	}
	if c.store == nil {
		return false, domain.ErrSessionNotStarted
	}

	unlock := c.store.Lock(c.key)
	defer unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return false, err
	}

	if c.state.Solved {
		verifications.WithLabelValues("sticky").Inc()
		return true, nil
	}
	if !c.state.HasAnswer() {
		verifications.WithLabelValues("missing").Inc()
		c.logger.Warn("Challenge has no answer on record", "key", c.key)
		return false, nil
	}
	if !AnswersMatch(submitted, c.state.Answer) {
		verifications.WithLabelValues("wrong").Inc()
		return false, nil
	}

	solved := c.state
	solved.Solved = true
	if err := c.store.Save(ctx, c.key, solved); err != nil {
		return false, fmt.Errorf("save solved challenge %s: %w", c.key, err)
	}
	c.state = solved
	verifications.WithLabelValues("solved").Inc()
	c.logger.Debug("Challenge solved", "key", c.key)
	return true, nil
}

// refreshLocked makes the in-memory record match storage before a
// read-modify-write. Another request of the same session may have solved or
// cleared the challenge since this controller loaded it.
func (c *Controller) refreshLocked(ctx context.Context) error {
	if !c.generated {
		return c.ensureGeneratedLocked(ctx)
	}

	stored, err := c.store.Load(ctx, c.key)
	if err != nil {
		return fmt.Errorf("load challenge %s: %w", c.key, err)
	}
	if stored == nil {
		// Cleared concurrently: keep the old question out of storage and
		// let the next render generate a fresh one.
		c.state = domain.ChallengeState{}
		c.generated = false
		return nil
	}
	c.state = *stored
	return nil
}

// Question returns the question text, generating the challenge if needed.
func (c *Controller) Question(ctx context.Context) (string, error) {
	if err := c.EnsureGenerated(ctx); err != nil {
		return "", err
	}
	return c.state.Question, nil
}

// Clear deletes the stored challenge and resets the controller, so the next
// use of the same key starts with a fresh, unsolved challenge.
func (c *Controller) Clear(ctx context.Context) error {
	if c.store == nil {
		return domain.ErrSessionNotStarted
	}

	unlock := c.store.Lock(c.key)
	defer unlock()

	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("delete challenge %s: %w", c.key, err)
	}
	c.state = domain.ChallengeState{}
	c.generated = false
	challengesCleared.Inc()
	return nil
}
