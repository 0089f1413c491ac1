package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/policy"
)

type resourceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MinTier     int    `json:"min_tier"`
	TierName    string `json:"tier_name"`
	Path        string `json:"path,omitempty"`
	Sensitive   bool   `json:"sensitive"`
}

func toResourceResponse(r *directory.Resource) resourceResponse {
	return resourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		MinTier:     r.MinTier,
		TierName:    policy.TierName(r.MinTier),
		Path:        r.Path,
		Sensitive:   r.Sensitive,
	}
}

func (a *API) handleListResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	list, err := a.resources.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]resourceResponse, 0, len(list))
	for _, res := range list {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

// handleResourcePath serves /v1/resources/{id} and /v1/resources/{id}/access.
func (a *API) handleResourcePath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/resources/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleGetResource(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "access":
		a.handleResourceAccess(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleGetResource(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	res, err := a.resources.Find(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

type accessResponse struct {
	Allowed  bool             `json:"allowed"`
	Resource resourceResponse `json:"resource"`
	Risk     riskResponse     `json:"risk"`
	StepUp   *stepUpResponse  `json:"step_up,omitempty"`
}

// handleResourceAccess runs the access check for the authenticated caller.
// The verified-factor claims of the presented credential count as satisfied.
func (a *API) handleResourceAccess(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	decision, err := a.svc.CheckAccess(r.Context(), claims.UserID, id, claims.VerifiedFactors())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := accessResponse{
		Allowed:  decision.Allowed,
		Resource: toResourceResponse(decision.Resource),
		Risk:     riskResponse{Score: decision.RiskScore, Level: decision.RiskLevel},
	}
	if decision.SessionID != "" {
		out.StepUp = &stepUpResponse{
			SessionID: decision.SessionID,
			Required:  decision.Required,
			ExpiresAt: decision.SessionTTL,
		}
		writeJSON(w, http.StatusForbidden, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type auditEventResponse struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Outcome       string    `json:"outcome"`
	MethodUsed    string    `json:"method_used,omitempty"`
	RiskScore     int       `json:"risk_score"`
	RiskLevel     string    `json:"risk_level"`
	IPAddress     string    `json:"ip_address,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// handleAuditEvents lists the caller's own access events, newest first.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.events == nil {
		writeError(w, r, http.StatusNotFound, "audit trail not available")
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := a.events.RecentByUser(r.Context(), claims.UserID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:            e.ID,
			ResourceID:    e.ResourceID,
			Outcome:       string(e.Outcome),
			MethodUsed:    e.MethodUsed,
			RiskScore:     e.RiskScore,
			RiskLevel:     e.RiskLevel,
			IPAddress:     e.IPAddress,
			FailureReason: e.FailureReason,
			OccurredAt:    e.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
