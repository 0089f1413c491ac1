package stepup

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/ids"
	"hybridaccess.org/internal/obs"
	"hybridaccess.org/internal/policy"
)

// Register creates an account at the given clearance tier with a hashed
// password and zeroed counters. An unmapped tier is rejected, not clamped.
func (s *Service) Register(ctx context.Context, fullName, email, password string, tier int) (*directory.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", directory.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", directory.ErrInvalidInput)
	}
	if !policy.Known(tier) {
		return nil, fmt.Errorf("%w: unknown tier %d", directory.ErrInvalidInput, tier)
	}

	hash, err := directory.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("stepup: hash password: %w", err)
	}
	now := s.now().UTC()
	user := &directory.User{
		ID:           ids.New(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Tier:         tier,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetupRotatingCode mints a fresh secret for the account and stages it. The
// factor only counts once the user proves possession via EnableRotatingCode.
func (s *Service) SetupRotatingCode(ctx context.Context, userID string) (secret, uri string, err error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("stepup: load account: %w", err)
	}
	secret, uri, err = factor.GenerateSecret(s.enrollIssuer, user.Email)
	if err != nil {
		return "", "", err
	}
	if err := s.users.SetCodeSecret(ctx, user.ID, secret); err != nil {
		return "", "", fmt.Errorf("stepup: stage secret: %w", err)
	}
	return secret, uri, nil
}

// EnableRotatingCode verifies a first code against the staged secret and
// flips the enrollment flag. A wrong code is ErrFactorRejected; the staged
// secret stays put so the user can try again.
func (s *Service) EnableRotatingCode(ctx context.Context, userID, code string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return fmt.Errorf("stepup: load account: %w", err)
	}
	if user.CodeSecret == "" {
		return ErrNotEnrolled
	}
	if !factor.ValidateCode(user.CodeSecret, code, 1) {
		return ErrFactorRejected
	}
	if err := s.users.EnableCode(ctx, user.ID); err != nil {
		return fmt.Errorf("stepup: enable rotating code: %w", err)
	}
	return nil
}

// FaceEnroller registers a reference image with the biometric matching
// service. *factor.FaceVerifier satisfies it.
type FaceEnroller interface {
	Enroll(ctx context.Context, identity, imageBase64 string) error
}

// EnrollFace registers a reference image for the account with the face
// service and flips the enrollment flag once the service accepts it.
func (s *Service) EnrollFace(ctx context.Context, userID, imageBase64 string) error {
	if s.faces == nil {
		return ErrBiometricUnavailable
	}
	if strings.TrimSpace(imageBase64) == "" {
		return fmt.Errorf("%w: image is required", directory.ErrInvalidInput)
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return fmt.Errorf("stepup: load account: %w", err)
	}
	if err := s.faces.Enroll(ctx, user.Email, imageBase64); err != nil {
		return fmt.Errorf("stepup: face enrollment: %w", err)
	}
	if err := s.users.SetFaceEnrolled(ctx, user.ID, true); err != nil {
		return fmt.Errorf("stepup: mark face enrolled: %w", err)
	}
	return nil
}

// FaceEnrollmentHook returns a callback for the face verifier's auto-enroll
// signal. It flips the account flag so the directory reflects what the face
// service already stores; failures are logged and dropped since the verify
// verdict stands either way.
func FaceEnrollmentHook(users directory.UserStore) func(ctx context.Context, identity string) {
	return func(ctx context.Context, identity string) {
		user, err := users.FindByEmail(ctx, identity)
		if err == nil {
			err = users.SetFaceEnrolled(ctx, user.ID, true)
		}
		if err != nil {
			obs.LogEvent(map[string]any{
				"ts": time.Now().UTC().Format(time.RFC3339Nano), "type": "stepup",
				"event": "face.auto_enroll_flag_failed", "identity": identity, "error": err.Error(),
			})
		}
	}
}

// SecretSource adapts the user store to the rotating-code verifier: the
// secret counts only after enrollment completed.
func SecretSource(users directory.UserStore) factor.SecretSource {
	return userSecretSource{users: users}
}

type userSecretSource struct {
	users directory.UserStore
}

func (s userSecretSource) RotatingCodeSecret(ctx context.Context, identity string) (string, bool, error) {
	user, err := s.users.FindByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !user.CodeEnabled || user.CodeSecret == "" {
		return "", false, nil
	}
	return user.CodeSecret, true, nil
}
