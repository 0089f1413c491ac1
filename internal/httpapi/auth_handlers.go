package httpapi

import (
	"net/http"
	"time"

	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/policy"
)

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Tier     int    `json:"tier"`
}

type userResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Tier     int    `json:"tier"`
	TierName string `json:"tier_name"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Tier == 0 {
		req.Tier = policy.TierPublic
	}
	user, err := a.svc.Register(r.Context(), req.FullName, req.Email, req.Password, req.Tier)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
		Tier:     user.Tier,
		TierName: policy.TierName(user.Tier),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type riskResponse struct {
	Score int    `json:"score"`
	Level string `json:"level"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Risk      riskResponse `json:"risk"`
	User      userResponse `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Risk:      riskResponse{Score: res.RiskScore, Level: res.RiskLevel},
		User: userResponse{
			ID:       res.User.ID,
			FullName: res.User.FullName,
			Email:    res.User.Email,
			Tier:     res.User.Tier,
			TierName: policy.TierName(res.User.Tier),
		},
	})
}

type stepUpResponse struct {
	SessionID string    `json:"session_id"`
	Required  []string  `json:"required_factors"`
	ExpiresAt time.Time `json:"expires_at"`
}

type legacyLoginResponse struct {
	Token     string          `json:"token,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	StepUp    *stepUpResponse `json:"step_up,omitempty"`
	Risk      riskResponse    `json:"risk"`
}

// handleLegacyLogin drives the deprecated login-time step-up flow.
func (a *API) handleLegacyLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.LoginLegacy(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := legacyLoginResponse{Risk: riskResponse{Score: res.RiskScore, Level: res.RiskLevel}}
	if res.StepUpRequired() {
		out.StepUp = &stepUpResponse{
			SessionID: res.SessionID,
			Required:  res.Required,
			ExpiresAt: res.SessionTTL,
		}
	} else {
		out.Token = res.Token
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, out)
}

type verifyFactorRequest struct {
	SessionID string `json:"session_id"`
	Factor    string `json:"factor"`
	Proof     string `json:"proof"`
}

type verifyFactorResponse struct {
	Completed bool       `json:"completed"`
	Verified  []string   `json:"verified_factors,omitempty"`
	Required  []string   `json:"required_factors,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleVerifyFactor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyFactorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := factor.ParseKind(req.Factor)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.SubmitFactor(r.Context(), req.SessionID, kind, req.Proof)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := verifyFactorResponse{
		Completed: res.Completed,
		Verified:  res.Verified,
		Required:  res.Required,
	}
	if res.Completed {
		out.Token = res.Token
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, out)
}

type otpSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}

func (a *API) handleOTPSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	secret, uri, err := a.svc.SetupRotatingCode(r.Context(), claims.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpSetupResponse{Secret: secret, URI: uri})
}

type otpEnableRequest struct {
	Code string `json:"code"`
}

func (a *API) handleOTPEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req otpEnableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.EnableRotatingCode(r.Context(), claims.UserID, req.Code); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

type faceEnrollRequest struct {
	Image string `json:"image_base64"`
}

func (a *API) handleFaceEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req faceEnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.EnrollFace(r.Context(), claims.UserID, req.Image); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enrolled": true})
}
