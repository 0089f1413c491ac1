package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"hybridaccess.org/internal/audit"
	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/obs"
	"hybridaccess.org/internal/stepup"
	"hybridaccess.org/internal/token"
)

// ReadyProbe checks readiness (e.g. a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the step-up orchestrator.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	svc       *stepup.Service
	issuer    *token.Issuer
	resources directory.ResourceStore
	events    audit.Reader
}

// Option configures the API.
type Option func(*API)

// WithAuditReader enables the access-event listing endpoint.
func WithAuditReader(r audit.Reader) Option {
	return func(a *API) { a.events = r }
}

func New(svc *stepup.Service, issuer *token.Issuer, resources directory.ResourceStore, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		issuer:     issuer,
		resources:  resources,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication flow; login and register carry a tight rate limit
	a.mux.Handle("/v1/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), 5, 2))
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.Handle("/v1/auth/login/legacy", RateLimit(http.HandlerFunc(a.handleLegacyLogin), 10, 5))
	a.mux.HandleFunc("/v1/auth/mfa/verify", a.handleVerifyFactor)
	a.mux.HandleFunc("/v1/auth/otp/setup", a.handleOTPSetup)
	a.mux.HandleFunc("/v1/auth/otp/enable", a.handleOTPEnable)
	a.mux.HandleFunc("/v1/auth/face/enroll", a.handleFaceEnroll)

	// protected resources
	a.mux.HandleFunc("/v1/resources", a.handleListResources)
	a.mux.HandleFunc("/v1/resources/", a.handleResourcePath)

	// access-event trail
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = ClientContext(h)
	h = Logging(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hybridaccess-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "hybridaccess-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError translates orchestrator and store errors to a fixed
// small set of HTTP outcomes. Internal detail never reaches the response.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stepup.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, stepup.ErrFactorRejected):
		writeError(w, r, http.StatusUnauthorized, "factor rejected")
	case errors.Is(err, stepup.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "session not found")
	case errors.Is(err, stepup.ErrSessionExpired):
		writeError(w, r, http.StatusGone, "session expired")
	case errors.Is(err, stepup.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, "access denied")
	case errors.Is(err, stepup.ErrStepUpNotRequired):
		writeError(w, r, http.StatusConflict, "step-up not required")
	case errors.Is(err, stepup.ErrNotEnrolled):
		writeError(w, r, http.StatusConflict, "rotating code not set up")
	case errors.Is(err, stepup.ErrBiometricUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "biometric enrollment unavailable")
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
