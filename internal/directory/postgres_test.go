package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func userRow() *sqlmock.Rows {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "password_hash", "tier", "active", "created_at",
		"updated_at", "last_login", "failed_attempts", "code_secret", "code_enabled", "face_enrolled",
	}).AddRow("u-1", "Test Agent", "agent@example.com", "hash", 4, true, created,
		nil, nil, 2, nil, false, false)
}

func TestPGFindUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .+ from users where id=\$1`).
		WithArgs("u-1").
		WillReturnRows(userRow())

	users := NewPGStore(db).Users(context.Background())
	u, err := users.Find(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.ID != "u-1" || u.Tier != 4 || u.FailedAttempts != 2 {
		t.Fatalf("user wrong: %+v", u)
	}
	if u.LastLogin != nil || u.CodeSecret != "" {
		t.Fatalf("null columns mishandled: %+v", u)
	}
}

func TestPGFindUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .+ from users where email=\$1`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	users := NewPGStore(db).Users(context.Background())
	if _, err := users.FindByEmail(context.Background(), "Ghost@Example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGCounterUpdatesRequireRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`update users set failed_attempts = failed_attempts \+ 1.*`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update users set failed_attempts = 0.*`).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	users := NewPGStore(db).Users(context.Background())
	if err := users.IncrementFailedAttempts(context.Background(), "u-1"); err != nil {
		t.Fatalf("IncrementFailedAttempts: %v", err)
	}
	if err := users.ResetFailedAttempts(context.Background(), "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCreateUserNormalizesEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`insert into users.*`).
		WithArgs(sqlmock.AnyArg(), "Test Agent", "agent@example.com", "hash", 4, true, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	users := NewPGStore(db).Users(context.Background())
	u := &User{FullName: "Test Agent", Email: " Agent@Example.COM ", PasswordHash: "hash", Tier: 4, Active: true}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("no id assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
