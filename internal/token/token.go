// Package token mints and verifies the signed credential issued once an
// access attempt has satisfied every required factor.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/policy"
)

const (
	defaultIssuer = "hybridaccess"
	defaultTTL    = time.Hour
)

var (
	// ErrSigningKey indicates the signing key is absent or malformed. Fatal
	// to the calling request; never retried.
	ErrSigningKey = errors.New("token: signing key unavailable")
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("token: invalid token")
)

// Claims carries identity and proof claims embedded in issued credentials.
type Claims struct {
	UserID       string   `json:"user_id"`
	Tier         int      `json:"tier"`
	TierName     string   `json:"tier_name"`
	Factors      []string `json:"mfa_factors,omitempty"`
	MFACompleted bool     `json:"mfa_completed"`
	jwt.RegisteredClaims
}

// VerifiedFactors returns the proof claims as a factor set.
func (c *Claims) VerifiedFactors() factor.Set {
	s := factor.NewSet()
	for _, raw := range c.Factors {
		if k, err := factor.ParseKind(raw); err == nil {
			s.Add(k)
		}
	}
	return s
}

// Issuer signs credentials with a shared symmetric secret (HS256). The key
// and clock are injected so tests can supply deterministic values.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithIssuer overrides the issuer claim.
func WithIssuer(name string) Option {
	return func(i *Issuer) {
		if strings.TrimSpace(name) != "" {
			i.issuer = strings.TrimSpace(name)
		}
	}
}

// WithTTL overrides the credential lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer from a shared secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSigningKey
	}
	i := &Issuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a credential for the user carrying the verified factor set.
// An empty set yields a password-only credential with the completion flag
// unset.
func (i *Issuer) Issue(user *directory.User, verified factor.Set) (string, time.Time, error) {
	if i == nil || len(i.secret) == 0 {
		return "", time.Time{}, ErrSigningKey
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		UserID:       user.ID,
		Tier:         user.Tier,
		TierName:     policy.TierName(user.Tier),
		Factors:      verified.Strings(),
		MFACompleted: len(verified) > 0,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, exp, nil
}

// ParseAndValidate verifies the signature and required claims.
func (i *Issuer) ParseAndValidate(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	if i == nil || len(i.secret) == 0 {
		return nil, ErrSigningKey
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) validateClaims(claims *Claims) error {
	if claims.Issuer != i.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
