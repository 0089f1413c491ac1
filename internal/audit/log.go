package audit

import (
	"context"
	"errors"
	"time"

	"hybridaccess.org/internal/obs"
)

var _ Recorder = (*LogRecorder)(nil)

// LogRecorder writes events to the structured log. It is the default
// recorder when no database is configured.
type LogRecorder struct{}

// NewLogRecorder creates a log-backed recorder.
func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

func (r *LogRecorder) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("audit: nil event")
	}
	entry := map[string]any{
		"ts":          e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"type":        "audit",
		"event":       "access_event",
		"event_id":    e.ID,
		"user_id":     e.UserID,
		"resource_id": e.ResourceID,
		"outcome":     string(e.Outcome),
		"method_used": e.MethodUsed,
		"risk_score":  e.RiskScore,
		"risk_level":  e.RiskLevel,
	}
	if e.IPAddress != "" {
		entry["ip"] = e.IPAddress
	}
	if e.UserAgent != "" {
		entry["user_agent"] = e.UserAgent
	}
	if e.FailureReason != "" {
		entry["failure_reason"] = e.FailureReason
	}
	obs.LogEvent(entry)
	return nil
}
