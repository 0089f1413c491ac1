package factor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

type mapSecrets struct {
	secrets map[string]string
	err     error
}

func (m mapSecrets) RotatingCodeSecret(ctx context.Context, identity string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	secret, ok := m.secrets[identity]
	return secret, ok, nil
}

func TestGenerateSecretAndURI(t *testing.T) {
	secret, uri, err := GenerateSecret("hybridaccess", "agent@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if secret == "" {
		t.Fatal("empty secret")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") || !strings.Contains(uri, "hybridaccess") {
		t.Fatalf("uri = %q", uri)
	}

	rebuilt, err := EnrollmentURI("hybridaccess", "agent@example.com", secret)
	if err != nil {
		t.Fatalf("EnrollmentURI: %v", err)
	}
	if !strings.Contains(rebuilt, "secret="+secret) {
		t.Fatalf("rebuilt uri lost the secret: %q", rebuilt)
	}

	if _, err := EnrollmentURI("hybridaccess", "agent@example.com", "not-base32!!"); err == nil {
		t.Fatal("malformed secret accepted")
	}
}

func TestTOTPVerify(t *testing.T) {
	secret, _, err := GenerateSecret("hybridaccess", "agent@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	v := NewTOTPVerifier(mapSecrets{secrets: map[string]string{"agent@example.com": secret}})
	ctx := context.Background()

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	ok, err := v.Verify(ctx, "agent@example.com", code)
	if err != nil || !ok {
		t.Fatalf("valid code rejected: ok=%v err=%v", ok, err)
	}

	// Previous period still accepted within the skew window.
	stale, err := totp.GenerateCode(secret, time.Now().UTC().Add(-30*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if ok, _ := v.Verify(ctx, "agent@example.com", stale); !ok {
		t.Fatal("code within skew window rejected")
	}

	for _, bad := range []string{"000000", "12345", "abcdef", ""} {
		if ok, err := v.Verify(ctx, "agent@example.com", bad); ok || err != nil {
			t.Fatalf("bad code %q: ok=%v err=%v", bad, ok, err)
		}
	}
}

func TestTOTPVerifyUnenrolled(t *testing.T) {
	v := NewTOTPVerifier(mapSecrets{secrets: map[string]string{}})
	if ok, err := v.Verify(context.Background(), "ghost@example.com", "123456"); ok || err != nil {
		t.Fatalf("unenrolled identity: ok=%v err=%v", ok, err)
	}
}

func TestTOTPVerifySecretSourceError(t *testing.T) {
	v := NewTOTPVerifier(mapSecrets{err: errors.New("store down")})
	if _, err := v.Verify(context.Background(), "agent@example.com", "123456"); err == nil {
		t.Fatal("secret source failure swallowed")
	}
}
