package stepup

import "errors"

// User-visible error taxonomy. Everything else that can go wrong inside the
// orchestrator is wrapped into one of these at the boundary; callers branch
// with errors.Is and never see transport or storage detail.
var (
	// ErrInvalidCredentials covers wrong password, unknown account, and
	// disabled account alike; the message never says which.
	ErrInvalidCredentials = errors.New("stepup: invalid credentials")
	// ErrSessionNotFound means the step-up session never existed or was
	// already deleted; the caller restarts the flow.
	ErrSessionNotFound = errors.New("stepup: session not found")
	// ErrSessionExpired means the session passed its absolute deadline.
	ErrSessionExpired = errors.New("stepup: session expired")
	// ErrFactorRejected means the proof failed verification. Recoverable;
	// the caller may retry on the same session.
	ErrFactorRejected = errors.New("stepup: factor rejected")
	// ErrAccessDenied means the account's clearance tier is below the
	// resource's minimum.
	ErrAccessDenied = errors.New("stepup: access denied")
	// ErrStepUpNotRequired means the tier needs no extra factors, so no
	// session exists to create.
	ErrStepUpNotRequired = errors.New("stepup: step-up not required")
	// ErrNotEnrolled means the account has no rotating-code secret staged.
	ErrNotEnrolled = errors.New("stepup: rotating code not enrolled")
	// ErrBiometricUnavailable means no face service is configured, so
	// biometric enrollment cannot be performed.
	ErrBiometricUnavailable = errors.New("stepup: biometric service unavailable")
)
