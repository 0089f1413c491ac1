package factor

import (
	"context"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// SecretSource resolves the enrolled rotating-code secret for an identity.
type SecretSource interface {
	RotatingCodeSecret(ctx context.Context, identity string) (secret string, enrolled bool, err error)
}

// TOTPVerifier validates time-based one-time codes against the identity's
// enrolled secret. Codes one period either side of now are accepted to absorb
// clock drift between the server and the code generator.
type TOTPVerifier struct {
	secrets SecretSource
	skew    uint
}

// NewTOTPVerifier builds a rotating-code verifier backed by the given secret source.
func NewTOTPVerifier(secrets SecretSource) *TOTPVerifier {
	return &TOTPVerifier{secrets: secrets, skew: 1}
}

// Kind implements Verifier.
func (v *TOTPVerifier) Kind() Kind { return RotatingCode }

// Verify implements Verifier. A missing enrollment or malformed code is a
// plain rejection, not an error.
func (v *TOTPVerifier) Verify(ctx context.Context, identity, proof string) (bool, error) {
	secret, enrolled, err := v.secrets.RotatingCodeSecret(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("factor: resolve rotating-code secret: %w", err)
	}
	if !enrolled || secret == "" {
		return false, nil
	}
	return ValidateCode(secret, proof, v.skew), nil
}

// ValidateCode checks a 6-digit code against a base32 secret with the given
// period skew tolerance.
func ValidateCode(secret, code string, skew uint) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateSecret mints a fresh base32 secret and the matching otpauth://
// enrollment URI for the identity.
func GenerateSecret(issuer, identity string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: identity,
	})
	if err != nil {
		return "", "", fmt.Errorf("factor: generate rotating-code secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// EnrollmentURI rebuilds the otpauth:// URI for an already-stored secret.
func EnrollmentURI(issuer, identity, secret string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("factor: malformed base32 secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: identity,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("factor: build enrollment uri: %w", err)
	}
	return key.URL(), nil
}
