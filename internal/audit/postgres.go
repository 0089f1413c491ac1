package audit

import (
	"context"
	"database/sql"
)

var (
	_ Recorder = (*PGRecorder)(nil)
	_ Reader   = (*PGRecorder)(nil)
)

// PGRecorder appends events to the access_events table.
type PGRecorder struct {
	db *sql.DB
}

// NewPGRecorder wraps an open database handle.
func NewPGRecorder(db *sql.DB) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) Record(ctx context.Context, e *Event) error {
	_, err := r.db.ExecContext(ctx, `
		insert into access_events (id, user_id, resource_id, outcome, method_used, risk_score, risk_level, ip_address, user_agent, failure_reason, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, nullable(e.ResourceID), string(e.Outcome), nullable(e.MethodUsed),
		e.RiskScore, e.RiskLevel, nullable(e.IPAddress), nullable(e.UserAgent),
		nullable(e.FailureReason), e.OccurredAt.UTC())
	return err
}

func (r *PGRecorder) RecentByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		select id, user_id, resource_id, outcome, method_used, risk_score, risk_level, ip_address, user_agent, failure_reason, occurred_at
		from access_events where user_id = $1 order by occurred_at desc limit $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                              Event
			resource, method, ip, ua, why sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &resource, &e.Outcome, &method,
			&e.RiskScore, &e.RiskLevel, &ip, &ua, &why, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ResourceID = resource.String
		e.MethodUsed = method.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.FailureReason = why.String
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
