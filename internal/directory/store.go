package directory

import (
	"context"
	"time"
)

// UserStore describes persistence operations for user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	IncrementFailedAttempts(ctx context.Context, userID string) error
	ResetFailedAttempts(ctx context.Context, userID string, loginTime time.Time) error
	SetCodeSecret(ctx context.Context, userID, secret string) error
	EnableCode(ctx context.Context, userID string) error
	SetFaceEnrolled(ctx context.Context, userID string, enrolled bool) error
}

// ResourceStore describes persistence operations for protected resources.
type ResourceStore interface {
	Create(ctx context.Context, r *Resource) error
	Find(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context) ([]*Resource, error)
}

// Store bundles the directory collaborators.
type Store interface {
	Users(ctx context.Context) UserStore
	Resources(ctx context.Context) ResourceStore
}
