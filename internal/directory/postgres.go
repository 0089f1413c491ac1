package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hybridaccess.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore         { return &userStore{db: s.db} }
func (s *PGStore) Resources(context.Context) ResourceStore { return &resourceStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, full_name, email, password_hash, tier, active, created_at, updated_at,
	last_login, failed_attempts, code_secret, code_enabled, face_enrolled`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = normalizeEmail(u.Email)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, full_name, email, password_hash, tier, active, failed_attempts)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.Tier, u.Active, u.FailedAttempts,
	)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u         User
		updatedAt sql.NullTime
		lastLogin sql.NullTime
		secret    sql.NullString
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Tier, &u.Active,
		&u.CreatedAt, &updatedAt, &lastLogin, &u.FailedAttempts, &secret, &u.CodeEnabled,
		&u.FaceEnrolled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		u.UpdatedAt = updatedAt.Time
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	u.CodeSecret = secret.String
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, normalizeEmail(email)))
}

func (s *userStore) IncrementFailedAttempts(ctx context.Context, userID string) error {
	return execOne(ctx, s.db,
		`update users set failed_attempts = failed_attempts + 1, updated_at = now() where id=$1`,
		userID)
}

func (s *userStore) ResetFailedAttempts(ctx context.Context, userID string, loginTime time.Time) error {
	return execOne(ctx, s.db,
		`update users set failed_attempts = 0, last_login = $2, updated_at = now() where id=$1`,
		userID, loginTime)
}

func (s *userStore) SetCodeSecret(ctx context.Context, userID, secret string) error {
	return execOne(ctx, s.db,
		`update users set code_secret = $2, code_enabled = false, updated_at = now() where id=$1`,
		userID, secret)
}

func (s *userStore) EnableCode(ctx context.Context, userID string) error {
	return execOne(ctx, s.db,
		`update users set code_enabled = true, updated_at = now() where id=$1 and code_secret is not null`,
		userID)
}

func (s *userStore) SetFaceEnrolled(ctx context.Context, userID string, enrolled bool) error {
	return execOne(ctx, s.db,
		`update users set face_enrolled = $2, updated_at = now() where id=$1`,
		userID, enrolled)
}

// Resource store -----------------------------------------------------------
type resourceStore struct{ db *sql.DB }

func (s *resourceStore) Create(ctx context.Context, r *Resource) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into resources(id, name, description, min_tier, resource_path, is_sensitive)
		 values($1,$2,$3,$4,$5,$6)`,
		r.ID, r.Name, r.Description, r.MinTier, r.Path, r.Sensitive,
	)
	return err
}

func (s *resourceStore) Find(ctx context.Context, id string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, min_tier, resource_path, is_sensitive, created_at
		 from resources where id=$1`, id)
	var r Resource
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.MinTier, &r.Path, &r.Sensitive, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *resourceStore) List(ctx context.Context) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, min_tier, resource_path, is_sensitive, created_at
		 from resources order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.MinTier, &r.Path, &r.Sensitive, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &r)
	}
	return res, rows.Err()
}

func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
