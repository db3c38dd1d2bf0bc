// Package domain contains core domain types for the captcha service.
package domain

import "errors"

// ErrSessionNotStarted is returned when a challenge operation runs without an
// active user session. Falling back to request-scoped storage would make
// every request generate a fresh question, so callers must treat it as fatal.
var ErrSessionNotStarted = errors.New("session must be started")

// ChallengeState is the persisted record of one captcha instance.
// Answer is set exactly when Question is set.
type ChallengeState struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Solved   bool   `json:"solved"`
}

// HasAnswer reports whether an answer was ever generated for the challenge.
func (c *ChallengeState) HasAnswer() bool {
	return c != nil && c.Answer != ""
}
