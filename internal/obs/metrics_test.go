package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/resources/abc/access":       "/v1/resources/:id/access",
		"/v1/resources/abc":              "/v1/resources/:id",
		"/v1/sessions/xyz/factors":       "/v1/sessions/:id/factors",
		"/v1/auth/login":                 "/v1/auth/login",
		"/v1/auth/login?redirect=1":      "/v1/auth/login",
		"/v1/auth/mfa/verify":            "/v1/auth/mfa/verify",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
