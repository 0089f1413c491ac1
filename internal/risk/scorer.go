// Package risk scores access attempts on a 0-100 scale from contextual
// signals. The score feeds audit records and metrics; it is not a gate.
// Step-up decisions belong to the policy resolver.
package risk

import (
	"time"

	"hybridaccess.org/internal/directory"
)

// Signal weights. Each signal is capped individually; the sum is capped at 100.
const (
	unusualHourWeight       = 20
	failedAttemptsCap       = 30
	sensitiveResourceWeight = 25
	firstLoginWeight        = 15
	newAccountWeight        = 10

	maxScore = 100
)

// Level thresholds: LOW < 30 <= MEDIUM < 60 <= HIGH < 80 <= CRITICAL.
const (
	mediumThreshold   = 30
	highThreshold     = 60
	criticalThreshold = 80
)

// Scorer computes risk scores. It reads user and resource state and never
// mutates either.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the time source, useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Scorer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewScorer constructs a Scorer.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the risk score for an access attempt. resource is nil for a
// plain login.
func (s *Scorer) Score(user *directory.User, resource *directory.Resource) int {
	now := s.now()
	score := 0

	if unusualHour(now) {
		score += unusualHourWeight
	}
	if user.FailedAttempts > 0 {
		penalty := user.FailedAttempts * 10
		if penalty > failedAttemptsCap {
			penalty = failedAttemptsCap
		}
		score += penalty
	}
	if resource != nil && resource.Sensitive {
		score += sensitiveResourceWeight
	}
	if user.LastLogin == nil {
		score += firstLoginWeight
	}
	if !user.CreatedAt.IsZero() && now.Sub(user.CreatedAt) < 24*time.Hour {
		score += newAccountWeight
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// unusualHour reports whether t falls between 22:00 and 06:00 local time.
func unusualHour(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 6
}

// Level classifies a score for observability and audit output.
func Level(score int) string {
	switch {
	case score < mediumThreshold:
		return "LOW"
	case score < highThreshold:
		return "MEDIUM"
	case score < criticalThreshold:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}
