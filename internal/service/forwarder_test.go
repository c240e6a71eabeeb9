package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/backend"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/session"
)

func TestIsIdempotent(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"tools/list", true},
		{"prompts/get", true},
		{"resources/read", true},
		{"resources/list", true},
		{"tools/call", false},
		{"initialize", false},
	}
	for _, tt := range tests {
		if got := IsIdempotent(tt.method); got != tt.want {
			t.Errorf("IsIdempotent(%q) = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestForwardVerbatim(t *testing.T) {
	var gotBody []byte
	var gotOrgID, gotExtID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp" {
			t.Errorf("forward hit %s, want /mcp", r.URL.Path)
		}
		gotOrgID = r.Header.Get(HeaderOrganizationID)
		gotExtID = r.Header.Get(HeaderOrganizationExternalID)
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer ts.Close()

	f := NewForwarder(slog.Default(), WithHTTPClient(ts.Client()))
	srv := &backend.Server{ID: "linear", BaseURL: ts.URL}
	sess := &session.Session{OrganizationID: "org-1", OrganizationExternalID: "ext-1"}

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"linear_get_teams"}}`)
	out, err := f.Forward(context.Background(), srv, "tools/call", body, sess)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if string(gotBody) != string(body) {
		t.Errorf("body not forwarded verbatim: %s", gotBody)
	}
	if gotOrgID != "org-1" || gotExtID != "ext-1" {
		t.Errorf("organization headers missing: %q %q", gotOrgID, gotExtID)
	}
	if string(out) != `{"jsonrpc":"2.0","id":1,"result":{}}` {
		t.Errorf("response not returned verbatim: %s", out)
	}
}

func TestForwardRetriesIdempotent(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`))
	}))
	defer ts.Close()

	f := NewForwarder(slog.Default(), WithHTTPClient(ts.Client()))
	srv := &backend.Server{ID: "linear", BaseURL: ts.URL, MaxRetries: 2}

	out, err := f.Forward(context.Background(), srv, "tools/list", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("expected retries to succeed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(out) == 0 {
		t.Error("expected response body")
	}
}

func TestForwardNoRetryNonIdempotent(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	f := NewForwarder(slog.Default(), WithHTTPClient(ts.Client()))
	srv := &backend.Server{ID: "linear", BaseURL: ts.URL, MaxRetries: 3}

	if _, err := f.Forward(context.Background(), srv, "tools/call", []byte(`{}`), nil); err == nil {
		t.Fatal("expected forward failure")
	}
	if calls.Load() != 1 {
		t.Errorf("non-idempotent methods must not retry, got %d attempts", calls.Load())
	}
}

func TestForwardTimeout(t *testing.T) {
	blocked := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer ts.Close()
	defer close(blocked)

	f := NewForwarder(slog.Default(), WithHTTPClient(ts.Client()), WithTimeout(20*time.Millisecond))
	srv := &backend.Server{ID: "slow", BaseURL: ts.URL}

	start := time.Now()
	_, err := f.Forward(context.Background(), srv, "tools/call", []byte(`{}`), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}
