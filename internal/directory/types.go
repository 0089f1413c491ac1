package directory

import "time"

// User is an account known to the directory. The authorization engine reads
// it and mutates only the failed-attempt counter and last-login timestamp.
type User struct {
	ID             string
	FullName       string
	Email          string
	PasswordHash   string
	Tier           int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
	FailedAttempts int

	// Rotating-code enrollment.
	CodeSecret  string
	CodeEnabled bool

	// Biometric enrollment flag; the reference embedding lives in the
	// external face service.
	FaceEnrolled bool
}

// Resource is a protected asset with a minimum sensitivity tier.
type Resource struct {
	ID          string
	Name        string
	Description string
	MinTier     int
	Path        string
	Sensitive   bool
	CreatedAt   time.Time
}
