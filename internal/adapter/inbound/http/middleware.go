package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/outbound/memory"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/ctxkey"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
)

// Credential headers honored on /mcp.
const (
	HeaderAPIKey      = "x-api-key"
	HeaderSimulateOrg = "x-simulate-organization"
)

// RequestIDMiddleware extracts or generates a correlation id and enriches
// the logger. The id is stored under ctxkey.RequestIDKey and the enriched
// logger under ctxkey.LoggerKey; every log event downstream carries it.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, enriched)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// CredentialsMiddleware extracts the Authorization bearer, x-api-key, and
// x-simulate-organization headers into auth.Credentials on the context.
// Validation happens later; an absent credential set is legal here.
func CredentialsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := ExtractCredentials(r)
		ctx := context.WithValue(r.Context(), ctxkey.CredentialsKey{}, creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractCredentials reads the credential headers from a request.
func ExtractCredentials(r *http.Request) auth.Credentials {
	creds := auth.Credentials{
		APIKey:      r.Header.Get(HeaderAPIKey),
		SimulateOrg: r.Header.Get(HeaderSimulateOrg),
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		creds.Bearer = strings.TrimPrefix(h, "Bearer ")
	}
	return creds
}

// CredentialsFromContext retrieves extracted credentials from context.
func CredentialsFromContext(ctx context.Context) auth.Credentials {
	if creds, ok := ctx.Value(ctxkey.CredentialsKey{}).(auth.Credentials); ok {
		return creds
	}
	return auth.Credentials{}
}

// RealIPMiddleware extracts the client's real IP address for rate limiting.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy
// support), falling back to r.RemoteAddr. Only the first IP in
// X-Forwarded-For is trusted to avoid spoofing.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ctxkey.ClientIPKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPFromContext retrieves the client IP from context.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ctxkey.ClientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// BodySizeLimitMiddleware rejects oversized bodies with 413 before any JSON
// parsing. A declared Content-Length over the cap fails fast; chunked bodies
// are bounded by MaxBytesReader and fail at read time in the handler.
func BodySizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware enforces the origin allowlist and answers preflights.
// A request with an Origin outside the allowlist is rejected; requests
// without an Origin header pass (same-origin or non-browser).
func CORSMiddleware(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, ok := allowed[origin]
			if !ok && !wildcard {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}

			if wildcard && !allowCredentials {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			if allowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, x-api-key, x-simulate-organization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware emits the configured extra response headers.
func SecurityHeadersMiddleware(headers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(headers) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyGateMiddleware rejects requests that present neither a valid
// x-api-key nor a bearer token. Bearer validation (session token or
// identity-provider JWT) happens downstream; the gate only checks presence
// there. The x-api-key, when used, must match the configured gateway key.
func APIKeyGateMiddleware(gatewayKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromContext(r.Context())

			if creds.Bearer != "" {
				next.ServeHTTP(w, r)
				return
			}
			if creds.APIKey != "" && creds.APIKey == gatewayKey {
				next.ServeHTTP(w, r)
				return
			}

			LoggerFromContext(r.Context()).Warn("request rejected by api key gate")
			writeJSONError(w, http.StatusUnauthorized, "API key required")
		})
	}
}

// RateLimitMiddleware applies the per-key token bucket: keyed by API key
// when present, client IP otherwise. Excess requests reply 429.
func RateLimitMiddleware(limiter *memory.MemoryRateLimiter, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromContext(r.Context())
			key := creds.APIKey
			if key == "" {
				key = ClientIPFromContext(r.Context())
			}

			if !limiter.Allow(key) {
				if metrics != nil {
					metrics.RateLimitedTotal.Inc()
				}
				LoggerFromContext(r.Context()).Warn("rate limit exceeded", "key_kind", keyKind(creds.APIKey))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keyKind(apiKey string) string {
	if apiKey != "" {
		return "api_key"
	}
	return "ip"
}

// writeJSONError writes a plain JSON error body (no JSON-RPC envelope).
// Used by admission control, where requests fail before protocol handling.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
