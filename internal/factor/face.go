package factor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hybridaccess.org/internal/obs"
)

const defaultFaceTimeout = 10 * time.Second

// FaceVerifier delegates biometric matching to the external face service.
// The engine never sees embeddings, only the match verdict.
type FaceVerifier struct {
	baseURL      string
	client       *http.Client
	onAutoEnroll func(ctx context.Context, identity string)
}

// FaceOption configures a FaceVerifier.
type FaceOption func(*FaceVerifier)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) FaceOption {
	return func(v *FaceVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithAutoEnrollHook installs a callback invoked when the face service
// reports it enrolled the identity as a side effect of a verify.
func WithAutoEnrollHook(fn func(ctx context.Context, identity string)) FaceOption {
	return func(v *FaceVerifier) { v.onAutoEnroll = fn }
}

// NewFaceVerifier builds a verifier that calls the face service at baseURL.
func NewFaceVerifier(baseURL string, opts ...FaceOption) *FaceVerifier {
	v := &FaceVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultFaceTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Kind implements Verifier.
func (v *FaceVerifier) Kind() Kind { return Biometric }

type faceVerifyRequest struct {
	UserID      string `json:"userId"`
	ImageBase64 string `json:"imageBase64"`
}

type faceVerifyResponse struct {
	Match        bool    `json:"match"`
	Confidence   float64 `json:"confidence"`
	AutoEnrolled bool    `json:"autoEnrolled"`
	Message      string  `json:"message"`
}

// Verify implements Verifier. The proof is a base64-encoded image. Transport
// failures surface as errors so the caller can map them to a rejection without
// leaking detail to the end user.
func (v *FaceVerifier) Verify(ctx context.Context, identity, proof string) (bool, error) {
	if strings.TrimSpace(proof) == "" {
		return false, nil
	}
	body, err := json.Marshal(faceVerifyRequest{UserID: identity, ImageBase64: proof})
	if err != nil {
		return false, fmt.Errorf("factor: encode face request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/face/verify", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("factor: build face request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("factor: face service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("factor: face service returned status %d", resp.StatusCode)
	}
	var result faceVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("factor: decode face response: %w", err)
	}
	if result.AutoEnrolled {
		obs.LogEvent(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"type":  "factor",
			"event": "face.auto_enrolled",
			"user":  identity,
		})
		if v.onAutoEnroll != nil {
			v.onAutoEnroll(ctx, identity)
		}
	}
	return result.Match, nil
}

// Enroll registers a reference image for the identity. Enrollment is an
// onboarding concern and plays no part in the gating decision.
func (v *FaceVerifier) Enroll(ctx context.Context, identity, imageBase64 string) error {
	body, err := json.Marshal(faceVerifyRequest{UserID: identity, ImageBase64: imageBase64})
	if err != nil {
		return fmt.Errorf("factor: encode enroll request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/face/enroll", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("factor: build enroll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("factor: face service call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("factor: face service returned status %d", resp.StatusCode)
	}
	return nil
}
