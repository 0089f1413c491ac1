package session

import (
	"context"
	"errors"
	"time"

	"hybridaccess.org/internal/factor"
)

var (
	// ErrNotFound indicates the session does not exist (or was deleted).
	ErrNotFound = errors.New("session: not found")
	// ErrExpired indicates the session is past its absolute deadline.
	ErrExpired = errors.New("session: expired")
)

// Store holds step-up sessions. Implementations must make RecordFactor safe
// under concurrent invocation for the same key: the mutation is a set union,
// so applying the same add twice is idempotent and order-independent.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Find returns a snapshot of the session, including expired ones;
	// callers decide whether to treat expiry as fatal or sweep lazily.
	Find(ctx context.Context, id string) (*Session, error)
	// RecordFactor atomically marks kind verified at time now. It fails
	// with ErrExpired past the deadline and ErrNotFound after deletion,
	// and silently ignores kinds outside the required set.
	RecordFactor(ctx context.Context, id string, kind factor.Kind, now time.Time) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes every session past its deadline at time now
	// and returns the count removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
