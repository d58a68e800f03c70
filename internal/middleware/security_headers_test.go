package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SecurityHeadersConfig
		wantHSTS string
	}{
		{name: "plain http", cfg: SecurityHeadersConfig{}, wantHSTS: ""},
		{name: "https", cfg: SecurityHeadersConfig{HSTS: true}, wantHSTS: hstsValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSecurityHeadersMiddleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			h := w.Result().Header
			for name, want := range map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Referrer-Policy":           "same-origin",
				"Strict-Transport-Security": tt.wantHSTS,
			} {
				if got := h.Get(name); got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
			csp := h.Get("Content-Security-Policy")
			for _, directive := range []string{"frame-ancestors 'none'", "script-src 'none'", "form-action 'self'"} {
				if !strings.Contains(csp, directive) {
					t.Errorf("Content-Security-Policy = %q, missing %q", csp, directive)
				}
			}
		})
	}
}
