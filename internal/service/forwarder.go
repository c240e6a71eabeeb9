// Package service orchestrates the per-request flow from transport to
// backend and back.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/backend"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/session"
)

// DefaultForwardTimeout caps a single forward attempt.
const DefaultForwardTimeout = 15 * time.Second

// Retry backoff: 200ms x attempt, capped.
const (
	backoffStep = 200 * time.Millisecond
	backoffCap  = 2 * time.Second
)

// Organization headers added to forwarded requests when known.
const (
	HeaderOrganizationID         = "x-organization-id"
	HeaderOrganizationExternalID = "x-organization-external-id"
)

// Forwarder posts JSON-RPC bodies to backend MCP servers.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithTimeout overrides the per-attempt forward timeout.
func WithTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.timeout = d
	}
}

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) ForwarderOption {
	return func(f *Forwarder) {
		f.client = c
	}
}

// NewForwarder creates a Forwarder with the default timeout.
func NewForwarder(logger *slog.Logger, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		client:  &http.Client{},
		timeout: DefaultForwardTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsIdempotent reports whether a method is safe to retry. Only read-style
// methods qualify; everything else surfaces after the first failure.
func IsIdempotent(method string) bool {
	return strings.HasSuffix(method, "/list") ||
		strings.HasSuffix(method, "/get") ||
		strings.HasSuffix(method, "/read")
}

// Forward posts body to {backend}/mcp verbatim and returns the backend's
// response bytes. Idempotent methods retry up to the backend's MaxRetries
// with linear backoff; the context bounds the whole call.
func (f *Forwarder) Forward(ctx context.Context, srv *backend.Server, method string, body []byte, sess *session.Session) ([]byte, error) {
	attempts := 1
	if IsIdempotent(method) && srv.MaxRetries > 0 {
		attempts += srv.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * backoffStep
			if delay > backoffCap {
				delay = backoffCap
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			f.logger.Debug("retrying forward", "backend", srv.ID, "method", method, "attempt", attempt)
		}

		resp, err := f.forwardOnce(ctx, srv, body, sess)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// forwardOnce performs a single POST {base}/mcp attempt.
func (f *Forwarder) forwardOnce(ctx context.Context, srv *backend.Server, body []byte, sess *session.Session) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.BaseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		if sess.OrganizationID != "" {
			req.Header.Set(HeaderOrganizationID, sess.OrganizationID)
		}
		if sess.OrganizationExternalID != "" {
			req.Header.Set(HeaderOrganizationExternalID, sess.OrganizationExternalID)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", srv.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend %s returned %d", srv.ID, resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	return out, nil
}
