package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hybridaccess.org/internal/factor"
)

var _ Store = (*PGStore)(nil)

// PGStore persists sessions in PostgreSQL so step-up progress survives
// restarts and is shared across replicas.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, user_id, email, required_tier, required_factors, verified_factors, created_at, expires_at`

func encodeSet(s factor.Set) ([]byte, error) {
	return json.Marshal(s.Strings())
}

func decodeSet(raw []byte) (factor.Set, error) {
	var kinds []string
	if err := json.Unmarshal(raw, &kinds); err != nil {
		return nil, err
	}
	set := factor.NewSet()
	for _, k := range kinds {
		kind, err := factor.ParseKind(k)
		if err != nil {
			return nil, err
		}
		set.Add(kind)
	}
	return set, nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		s                  Session
		required, verified []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Email, &s.RequiredTier, &required, &verified, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if s.Required, err = decodeSet(required); err != nil {
		return nil, fmt.Errorf("session: decode required factors: %w", err)
	}
	if s.Verified, err = decodeSet(verified); err != nil {
		return nil, fmt.Errorf("session: decode verified factors: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return &s, nil
}

func (p *PGStore) Create(ctx context.Context, s *Session) error {
	required, err := encodeSet(s.Required)
	if err != nil {
		return err
	}
	verified, err := encodeSet(s.Verified)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into mfa_sessions (id, user_id, email, required_tier, required_factors, verified_factors, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.Email, s.RequiredTier, required, verified, s.CreatedAt.UTC(), s.ExpiresAt.UTC())
	return err
}

func (p *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `select `+sessionColumns+` from mfa_sessions where id = $1`, id)
	return scanSession(row)
}

// RecordFactor runs inside a transaction with the row locked so two
// concurrent factor submissions for the same session cannot lose updates.
func (p *PGStore) RecordFactor(ctx context.Context, id string, kind factor.Kind, now time.Time) (*Session, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `select `+sessionColumns+` from mfa_sessions where id = $1 for update`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	if !s.Valid(now) {
		return nil, ErrExpired
	}
	s.addVerified(kind)
	verified, err := encodeSet(s.Verified)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `update mfa_sessions set verified_factors = $1 where id = $2`, verified, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PGStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `delete from mfa_sessions where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `delete from mfa_sessions where expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
