package apiv1

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		remoteAddr   string
		realIP       string
		forwardedFor string
		expected     string
	}{
		"remote-addr-only":      {remoteAddr: "203.0.113.7:4321", expected: "203.0.113.7"},
		"remote-addr-ipv6":      {remoteAddr: "[2001:db8::1]:4321", expected: "2001:db8::1"},
		"forwarded-skips-local": {remoteAddr: "10.0.0.2:80", forwardedFor: "192.168.1.4, 198.51.100.9, 203.0.113.7", expected: "198.51.100.9"},
		"forwarded-all-local":   {remoteAddr: "10.0.0.2:80", forwardedFor: "10.1.1.1, 127.0.0.1", realIP: "198.51.100.2", expected: "198.51.100.2"},
		"real-ip-only":          {remoteAddr: "10.0.0.2:80", realIP: "198.51.100.2", expected: "198.51.100.2"},
		"forwarded-local-only":  {remoteAddr: "203.0.113.1:80", forwardedFor: "::1", expected: "203.0.113.1"},
	}

	for name, tc := range tests {
		req := httptest.NewRequest("GET", "/preferences", nil)
		req.RemoteAddr = tc.remoteAddr
		if tc.realIP != "" {
			req.Header.Set("X-Real-Ip", tc.realIP)
		}
		if tc.forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", tc.forwardedFor)
		}
		if got := clientIP(req); got != tc.expected {
			t.Errorf("%s: expected %q, got %q", name, tc.expected, got)
		}
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                 "",
		"Bearer":           "",
		"Bearer ":          "",
		"bearer abc.def":   "abc.def",
		"BEARER   abc.def": "abc.def",
		"Basic abc":        "",
		"Bearerabc":        "",
	}
	for header, expected := range tests {
		req := httptest.NewRequest("GET", "/preferences", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != expected {
			t.Errorf("Authorization %q: expected token %q, got %q", header, expected, got)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/preferences", nil)
	if got := UserIDFromContext(req.Context()); got != "" {
		t.Errorf("Expected no user ID, got %q", got)
	}
	ctx := WithUserID(req.Context(), "alice")
	if got := UserIDFromContext(ctx); got != "alice" {
		t.Errorf("Expected user ID alice, got %q", got)
	}
}
