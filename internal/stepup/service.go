// Package stepup orchestrates the adaptive authorization flow: password
// login, resource access checks, step-up session lifecycle, factor
// verification dispatch, and final credential issuance.
package stepup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hybridaccess.org/internal/audit"
	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/ids"
	"hybridaccess.org/internal/obs"
	"hybridaccess.org/internal/policy"
	"hybridaccess.org/internal/risk"
	"hybridaccess.org/internal/session"
	"hybridaccess.org/internal/token"
)

// Method strings recorded on audit events.
const (
	methodPassword   = "PASSWORD"
	methodMFAPending = "PASSWORD+MFA_PENDING"
)

// Service coordinates the collaborators of one authorization decision. All
// dependencies are injected; the clock and session TTL are overridable so
// tests control time.
type Service struct {
	users     directory.UserStore
	resources directory.ResourceStore
	sessions  session.Store
	verifiers *factor.Registry
	issuer    *token.Issuer

	scorer     *risk.Scorer
	recorder   audit.Recorder
	faces      FaceEnroller
	now        func() time.Time
	sessionTTL time.Duration

	// Issuer label stamped into otpauth:// enrollment URIs.
	enrollIssuer string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL overrides the step-up session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithRiskScorer overrides the risk scorer.
func WithRiskScorer(sc *risk.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithAuditRecorder overrides the audit sink.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithFaceEnroller enables biometric enrollment through the face service.
func WithFaceEnroller(e FaceEnroller) Option {
	return func(s *Service) {
		if e != nil {
			s.faces = e
		}
	}
}

// WithEnrollmentIssuer overrides the issuer label in enrollment URIs.
func WithEnrollmentIssuer(name string) Option {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.enrollIssuer = strings.TrimSpace(name)
		}
	}
}

// NewService wires the orchestrator. The first five collaborators are
// required; scorer and recorder default to a fresh scorer and the log sink.
func NewService(users directory.UserStore, resources directory.ResourceStore, sessions session.Store, verifiers *factor.Registry, issuer *token.Issuer, opts ...Option) (*Service, error) {
	if users == nil || resources == nil || sessions == nil || verifiers == nil || issuer == nil {
		return nil, errors.New("stepup: missing collaborator")
	}
	s := &Service{
		users:        users,
		resources:    resources,
		sessions:     sessions,
		verifiers:    verifiers,
		issuer:       issuer,
		scorer:       risk.NewScorer(),
		recorder:     audit.NewLogRecorder(),
		now:          time.Now,
		sessionTTL:   session.DefaultTTL,
		enrollIssuer: "hybridaccess",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginResult is the outcome of a successful password login.
type LoginResult struct {
	User      *directory.User
	Token     string
	ExpiresAt time.Time
	RiskScore int
	RiskLevel string
}

// authenticate checks the password and mutates the failed-attempt counters.
// Every failure is audited and counted here; what a success turns into (a
// credential, a step-up challenge) is the caller's call. The risk score is
// computed from the pre-login snapshot.
func (s *Service) authenticate(ctx context.Context, email, password string) (*directory.User, int, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			obs.ObserveLogin("denied")
			return nil, 0, "", ErrInvalidCredentials
		}
		return nil, 0, "", fmt.Errorf("stepup: load account: %w", err)
	}

	score := s.scorer.Score(user, nil)
	level := risk.Level(score)

	if !user.Active {
		s.record(ctx, &audit.Event{
			UserID: user.ID, Outcome: audit.Denied, MethodUsed: methodPassword,
			RiskScore: score, RiskLevel: level, FailureReason: "account disabled",
		})
		obs.ObserveLogin("denied")
		return nil, 0, "", ErrInvalidCredentials
	}

	if err := directory.VerifyPassword(user.PasswordHash, password); err != nil {
		if err := s.users.IncrementFailedAttempts(ctx, user.ID); err != nil {
			obs.LogEvent(map[string]any{
				"ts": s.now().UTC().Format(time.RFC3339Nano), "type": "stepup",
				"event": "failed_attempts.increment_failed", "user_id": user.ID, "error": err.Error(),
			})
		}
		s.record(ctx, &audit.Event{
			UserID: user.ID, Outcome: audit.Denied, MethodUsed: methodPassword,
			RiskScore: score, RiskLevel: level, FailureReason: "bad password",
		})
		obs.ObserveLogin("denied")
		return nil, 0, "", ErrInvalidCredentials
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID, s.now()); err != nil {
		return nil, 0, "", fmt.Errorf("stepup: reset failed attempts: %w", err)
	}
	return user, score, level, nil
}

// issuePasswordOnly signs a password-only credential and records the grant.
func (s *Service) issuePasswordOnly(ctx context.Context, user *directory.User, score int, level string) (string, time.Time, error) {
	signed, exp, err := s.issuer.Issue(user, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("stepup: issue credential: %w", err)
	}
	s.record(ctx, &audit.Event{
		UserID: user.ID, Outcome: audit.Granted, MethodUsed: methodPassword,
		RiskScore: score, RiskLevel: level,
	})
	obs.ObserveLogin("granted")
	return signed, exp, nil
}

// Login verifies the password and issues a credential immediately. Step-up
// happens at resource-access time, not here; the risk score is recorded for
// audit only.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, score, level, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	signed, exp, err := s.issuePasswordOnly(ctx, user, score, level)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Token: signed, ExpiresAt: exp, RiskScore: score, RiskLevel: level}, nil
}

// LegacyLoginResult is the outcome of the deprecated login-time step-up path.
type LegacyLoginResult struct {
	Token      string
	ExpiresAt  time.Time
	SessionID  string
	Required   []string
	SessionTTL time.Time
	RiskScore  int
	RiskLevel  string
}

// StepUpRequired reports whether the caller must complete extra factors.
func (r *LegacyLoginResult) StepUpRequired() bool { return r.SessionID != "" }

// LoginLegacy performs the old login-time step-up: the account tier's factor
// set is unioned with a risk-threshold escalation (score >= 80 requires both
// factors, >= 60 adds the biometric) and a session is opened when the union
// is non-empty.
//
// Deprecated: resource-time step-up via CheckAccess is authoritative. Kept
// for callers that still drive the old flow.
func (s *Service) LoginLegacy(ctx context.Context, email, password string) (*LegacyLoginResult, error) {
	user, score, level, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	required := policy.RequiredFactors(user.Tier)
	switch {
	case score >= 80:
		required.Add(factor.Biometric)
		required.Add(factor.RotatingCode)
	case score >= 60:
		required.Add(factor.Biometric)
	}

	out := &LegacyLoginResult{RiskScore: score, RiskLevel: level}
	if len(required) == 0 {
		out.Token, out.ExpiresAt, err = s.issuePasswordOnly(ctx, user, score, level)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	sess := session.New(user.ID, user.Email, user.Tier, required, s.now(), s.sessionTTL)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("stepup: create session: %w", err)
	}
	obs.SessionOpened()
	s.record(ctx, &audit.Event{
		UserID: user.ID, Outcome: audit.MFARequired, MethodUsed: methodMFAPending,
		RiskScore: score, RiskLevel: level,
	})
	obs.ObserveLogin("challenged")
	out.SessionID = sess.ID
	out.Required = required.Strings()
	out.SessionTTL = sess.ExpiresAt
	return out, nil
}

// AccessDecision is the outcome of a resource access check.
type AccessDecision struct {
	Allowed   bool
	Resource  *directory.Resource
	RiskScore int
	RiskLevel string

	// Set when step-up is required before access can be granted.
	SessionID  string
	Required   []string
	SessionTTL time.Time
}

// CheckAccess decides whether the user may reach the resource. The tier gate
// is absolute: a tier below the resource minimum is denied outright. When the
// tier suffices but the resource's factor set is not covered by satisfied
// (the verified-factor claims of the presented credential), a step-up
// session is opened and returned instead of a grant.
func (s *Service) CheckAccess(ctx context.Context, userID, resourceID string, satisfied factor.Set) (*AccessDecision, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("stepup: load account: %w", err)
	}
	resource, err := s.resources.Find(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("stepup: load resource: %w", err)
	}

	score := s.scorer.Score(user, resource)
	level := risk.Level(score)
	decision := &AccessDecision{Resource: resource, RiskScore: score, RiskLevel: level}

	if user.Tier < resource.MinTier {
		s.record(ctx, &audit.Event{
			UserID: user.ID, ResourceID: resource.ID, Outcome: audit.Denied,
			RiskScore: score, RiskLevel: level, FailureReason: "insufficient tier",
		})
		return decision, ErrAccessDenied
	}

	required := s.requiredFactors(resource.MinTier)
	if satisfied.ContainsAll(required) {
		method := methodPassword
		if len(satisfied) > 0 {
			method = methodPassword + "+" + satisfied.String()
		}
		s.record(ctx, &audit.Event{
			UserID: user.ID, ResourceID: resource.ID, Outcome: audit.Granted,
			MethodUsed: method, RiskScore: score, RiskLevel: level,
		})
		decision.Allowed = true
		return decision, nil
	}

	sess := session.New(user.ID, user.Email, resource.MinTier, required, s.now(), s.sessionTTL)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("stepup: create session: %w", err)
	}
	obs.SessionOpened()
	s.record(ctx, &audit.Event{
		UserID: user.ID, ResourceID: resource.ID, Outcome: audit.MFARequired,
		MethodUsed: methodMFAPending, RiskScore: score, RiskLevel: level,
	})
	decision.SessionID = sess.ID
	decision.Required = required.Strings()
	decision.SessionTTL = sess.ExpiresAt
	return decision, nil
}

// BeginStepUp opens a step-up session for the tier's required factors. It
// fails with ErrStepUpNotRequired when the tier maps to an empty set; such
// callers should have been granted access already.
func (s *Service) BeginStepUp(ctx context.Context, userID string, tier int) (*session.Session, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("stepup: load account: %w", err)
	}
	required := s.requiredFactors(tier)
	if len(required) == 0 {
		return nil, ErrStepUpNotRequired
	}
	sess := session.New(user.ID, user.Email, tier, required, s.now(), s.sessionTTL)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("stepup: create session: %w", err)
	}
	obs.SessionOpened()
	return sess, nil
}

// FactorResult is the outcome of one factor submission.
type FactorResult struct {
	Completed bool
	Verified  []string
	Required  []string

	// Set only when Completed.
	Token     string
	ExpiresAt time.Time
}

// SubmitFactor verifies one proof against the session's outstanding factors.
// Verifier transport failures are deliberately flattened to ErrFactorRejected
// so callers never see remote detail; the session is untouched on rejection.
func (s *Service) SubmitFactor(ctx context.Context, sessionID string, kind factor.Kind, proof string) (*FactorResult, error) {
	sess, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("stepup: load session: %w", err)
	}
	now := s.now()
	if !sess.Valid(now) {
		return nil, ErrSessionExpired
	}

	verifier, ok := s.verifiers.Verifier(kind)
	if !ok {
		obs.ObserveFactor(string(kind), "rejected")
		return nil, ErrFactorRejected
	}

	passed, err := verifier.Verify(ctx, sess.Email, proof)
	if err != nil {
		obs.LogEvent(map[string]any{
			"ts": now.UTC().Format(time.RFC3339Nano), "type": "stepup",
			"event": "factor.verifier_error", "factor": string(kind),
			"session_id": sessionID, "error": err.Error(),
		})
		obs.ObserveFactor(string(kind), "rejected")
		return nil, ErrFactorRejected
	}
	if !passed {
		obs.ObserveFactor(string(kind), "rejected")
		return nil, ErrFactorRejected
	}

	updated, err := s.sessions.RecordFactor(ctx, sessionID, kind, s.now())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrExpired):
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("stepup: record factor: %w", err)
	}
	obs.ObserveFactor(string(kind), "verified")

	if !updated.Complete() {
		return &FactorResult{
			Completed: false,
			Verified:  updated.Verified.Strings(),
			Required:  updated.Required.Strings(),
		}, nil
	}

	user, err := s.users.Find(ctx, updated.UserID)
	if err != nil {
		return nil, fmt.Errorf("stepup: load account: %w", err)
	}
	signed, exp, err := s.issuer.Issue(user, updated.Verified)
	if err != nil {
		return nil, fmt.Errorf("stepup: issue credential: %w", err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		obs.LogEvent(map[string]any{
			"ts": s.now().UTC().Format(time.RFC3339Nano), "type": "stepup",
			"event": "session.delete_failed", "session_id": sessionID, "error": err.Error(),
		})
	}
	obs.SessionClosed()

	score := s.scorer.Score(user, nil)
	s.record(ctx, &audit.Event{
		UserID: user.ID, Outcome: audit.Granted,
		MethodUsed: methodPassword + "+" + updated.Verified.String(),
		RiskScore:  score, RiskLevel: risk.Level(score),
	})
	return &FactorResult{
		Completed: true,
		Verified:  updated.Verified.Strings(),
		Required:  updated.Required.Strings(),
		Token:     signed,
		ExpiresAt: exp,
	}, nil
}

// SweepExpired removes every session past its deadline and returns the count.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("stepup: sweep sessions: %w", err)
	}
	if n > 0 {
		obs.SessionsSwept(n)
		obs.LogEvent(map[string]any{
			"ts": s.now().UTC().Format(time.RFC3339Nano), "type": "stepup",
			"event": "session.sweep", "removed": n,
		})
	}
	return n, nil
}

// requiredFactors resolves the tier policy, logging unmapped tiers as a
// policy anomaly before falling back to the safe empty set.
func (s *Service) requiredFactors(tier int) factor.Set {
	if !policy.Known(tier) {
		obs.LogEvent(map[string]any{
			"ts": s.now().UTC().Format(time.RFC3339Nano), "type": "stepup",
			"event": "policy.anomaly", "tier": tier,
		})
	}
	return policy.RequiredFactors(tier)
}

// record delivers an audit event, stamping identity fields from context.
// Delivery failures are logged and never propagate: audit must not block
// authorization decisions.
func (s *Service) record(ctx context.Context, e *audit.Event) {
	audit.Stamp(ctx, e, ids.New(), s.now())
	if err := s.recorder.Record(ctx, e); err != nil {
		obs.LogEvent(map[string]any{
			"ts": s.now().UTC().Format(time.RFC3339Nano), "type": "stepup",
			"event": "audit.record_failed", "error": err.Error(),
		})
	}
}
