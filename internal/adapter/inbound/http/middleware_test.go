package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/outbound/memory"
)

// passHandler records that the chain reached the inner handler.
func passHandler(reached *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var gotID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())
		if logger == nil {
			t.Error("expected enriched logger in context")
		}
		gotID = w.Header().Get("X-Request-ID")
	})

	h := RequestIDMiddleware(testLogger())(inner)

	// Generated id.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if gotID == "" {
		t.Error("expected a generated request id")
	}

	// Propagated id.
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("X-Request-ID", "corr-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if gotID != "corr-42" {
		t.Errorf("expected propagated id, got %q", gotID)
	}
}

func TestExtractCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	req.Header.Set(HeaderAPIKey, "key-abc")
	req.Header.Set(HeaderSimulateOrg, "org-9")

	creds := ExtractCredentials(req)
	if creds.Bearer != "tok-123" || creds.APIKey != "key-abc" || creds.SimulateOrg != "org-9" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	// Non-bearer Authorization is ignored.
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if creds := ExtractCredentials(req); creds.Bearer != "" {
		t.Errorf("basic auth must not populate bearer: %+v", creds)
	}
}

func TestBodySizeLimit(t *testing.T) {
	var reached bool
	h := BodySizeLimitMiddleware(16)(passHandler(&reached))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if reached {
		t.Error("oversized body must be rejected before the handler")
	}

	reached = false
	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("small"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !reached || rec.Code != http.StatusOK {
		t.Errorf("small body must pass: reached=%v code=%d", reached, rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	var reached bool
	h := CORSMiddleware([]string{"https://app.example.com"}, false)(passHandler(&reached))

	// Allowed origin.
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !reached {
		t.Error("allowed origin must pass")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Errorf("missing allow-origin header: %v", rec.Header())
	}

	// Disallowed origin.
	reached = false
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if reached || rec.Code != http.StatusForbidden {
		t.Errorf("disallowed origin must be rejected: reached=%v code=%d", reached, rec.Code)
	}

	// No origin header passes.
	reached = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if !reached {
		t.Error("request without origin must pass")
	}
}

func TestCORSPreflight(t *testing.T) {
	var reached bool
	h := CORSMiddleware([]string{"https://app.example.com"}, true)(passHandler(&reached))

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if reached {
		t.Error("preflight must be answered by the middleware")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "x-api-key") {
		t.Errorf("preflight must allow x-api-key: %v", rec.Header())
	}
}

func TestSecurityHeaders(t *testing.T) {
	var reached bool
	h := SecurityHeadersMiddleware(map[string]string{
		"Strict-Transport-Security": "max-age=63072000",
	})(passHandler(&reached))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if rec.Header().Get("Strict-Transport-Security") != "max-age=63072000" {
		t.Errorf("missing security header: %v", rec.Header())
	}
}

func TestAPIKeyGate(t *testing.T) {
	gate := func(r *http.Request) *httptest.ResponseRecorder {
		var reached bool
		h := CredentialsMiddleware(APIKeyGateMiddleware("gw-key")(passHandler(&reached)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	// No credentials: 401 with a JSON error body, no JSON-RPC envelope.
	rec := gate(httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"error"`) || strings.Contains(body, "jsonrpc") {
		t.Errorf("401 body must be a bare JSON error: %s", body)
	}

	// Correct API key passes.
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(HeaderAPIKey, "gw-key")
	if rec := gate(req); rec.Code != http.StatusOK {
		t.Errorf("expected API key to pass, got %d", rec.Code)
	}

	// Wrong API key is rejected.
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(HeaderAPIKey, "wrong")
	if rec := gate(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected wrong key rejection, got %d", rec.Code)
	}

	// A bearer token passes the gate (validated downstream).
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer anything")
	if rec := gate(req); rec.Code != http.StatusOK {
		t.Errorf("expected bearer to pass the gate, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := memory.NewRateLimiter(2)
	var reached bool
	h := CredentialsMiddleware(RealIPMiddleware(RateLimitMiddleware(limiter, nil)(passHandler(&reached))))

	do := func(apiKey string) int {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		if apiKey != "" {
			req.Header.Set(HeaderAPIKey, apiKey)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("client-a") != http.StatusOK || do("client-a") != http.StatusOK {
		t.Fatal("first two requests must pass")
	}
	if code := do("client-a"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	// A different key has its own bucket.
	if code := do("client-b"); code != http.StatusOK {
		t.Errorf("other key must pass, got %d", code)
	}
	// No key: bucketed by client IP.
	if do("") != http.StatusOK || do("") != http.StatusOK {
		t.Error("ip-keyed requests must pass while the bucket lasts")
	}
	if code := do(""); code != http.StatusTooManyRequests {
		t.Errorf("expected ip bucket exhaustion, got %d", code)
	}
}

func TestRealIPExtraction(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request)
		remote string
		want   string
	}{
		{"x-forwarded-for", func(r *http.Request) { r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8") }, "9.9.9.9:1", "1.2.3.4"},
		{"x-real-ip", func(r *http.Request) { r.Header.Set("X-Real-IP", "4.3.2.1") }, "9.9.9.9:1", "4.3.2.1"},
		{"remote addr", func(r *http.Request) {}, "9.9.9.9:1234", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			req.RemoteAddr = tt.remote
			tt.setup(req)
			if got := extractRealIP(req); got != tt.want {
				t.Errorf("extractRealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
