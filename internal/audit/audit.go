// Package audit records the outcome of every access decision. Events are
// append-only and written on the request path; recorder failures are logged
// and never veto the decision itself.
package audit

import (
	"context"
	"strings"
	"time"
)

// Outcome classifies an access decision.
type Outcome string

const (
	Granted     Outcome = "GRANTED"
	Denied      Outcome = "DENIED"
	MFARequired Outcome = "MFA_REQUIRED"
)

// Event is one access decision.
type Event struct {
	ID            string
	UserID        string
	ResourceID    string
	Outcome       Outcome
	MethodUsed    string
	RiskScore     int
	RiskLevel     string
	IPAddress     string
	UserAgent     string
	FailureReason string
	OccurredAt    time.Time
}

// Recorder persists access events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// Reader lists recorded events, newest first.
type Reader interface {
	RecentByUser(ctx context.Context, userID string, limit int) ([]Event, error)
}

type ctxKey string

const clientInfoKey ctxKey = "audit_client_info"

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the caller's network identity to the context so
// recorders can stamp events without threading extra parameters.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	ip = strings.TrimSpace(ip)
	userAgent = strings.TrimSpace(userAgent)
	if ip == "" && userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, clientInfoKey, clientInfo{ip: ip, userAgent: userAgent})
}

// ClientInfo extracts the caller's network identity from the context.
func ClientInfo(ctx context.Context) (ip, userAgent string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(clientInfoKey).(clientInfo); ok {
		return v.ip, v.userAgent
	}
	return "", ""
}

// Stamp fills in identity fields the caller left blank: a fresh id, the
// context's client info, and the supplied timestamp.
func Stamp(ctx context.Context, e *Event, id string, now time.Time) {
	if e.ID == "" {
		e.ID = id
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now.UTC()
	}
	if e.IPAddress == "" && e.UserAgent == "" {
		e.IPAddress, e.UserAgent = ClientInfo(ctx)
	}
}
