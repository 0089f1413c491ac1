// Package session tracks per-attempt progress toward satisfying the factors
// a resource tier requires. Sessions are short-lived, keyed by a random
// identifier, and distinct from any long-lived login session.
package session

import (
	"time"

	"github.com/google/uuid"

	"hybridaccess.org/internal/factor"
)

// DefaultTTL is the fixed absolute lifetime of a step-up session.
const DefaultTTL = 10 * time.Minute

// Session records one access attempt's step-up progress.
//
// Verified is always a subset of Required: the mutator silently ignores
// factor kinds outside the required set, which keeps out-of-policy
// submissions idempotent. There is no stored EXPIRED state; expiry is
// computed on read against ExpiresAt.
type Session struct {
	ID           string
	UserID       string
	Email        string
	RequiredTier int
	Required     factor.Set
	Verified     factor.Set
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// New creates a session for userID seeded with the required factor set.
func New(userID, email string, tier int, required factor.Set, now time.Time, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        email,
		RequiredTier: tier,
		Required:     required.Clone(),
		Verified:     factor.NewSet(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Valid reports whether the session is still usable at t.
func (s *Session) Valid(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// Complete reports whether every required factor has been verified. A session
// with an empty required set is never complete; callers that require zero
// extra factors must short-circuit before creating a session at all.
func (s *Session) Complete() bool {
	return len(s.Required) > 0 && s.Verified.ContainsAll(s.Required)
}

// addVerified records kind if it belongs to the required set. Re-adding an
// already-verified kind is a no-op; so is a kind outside the set.
func (s *Session) addVerified(kind factor.Kind) {
	if s.Required.Has(kind) {
		s.Verified.Add(kind)
	}
}

// clone returns an independent snapshot safe to hand to callers.
func (s *Session) clone() *Session {
	cp := *s
	cp.Required = s.Required.Clone()
	cp.Verified = s.Verified.Clone()
	return &cp
}
