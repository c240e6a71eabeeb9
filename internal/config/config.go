// Package config provides configuration types for the MCP gateway.
//
// Configuration is file-based (YAML) with environment variable overrides for
// the deployment-sensitive values. The gateway is multi-tenant but single
// process: backends are declared up front in the mcp_servers map and the
// capability map is built from it at boot.
package config

import (
	"time"
)

// Environment names recognized by the gateway.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DevAPIKey is the well-known development API key. The boot validator
// refuses to start in production when the configured key equals it.
const DevAPIKey = "dev-api-key-12345"

// GatewayConfig is the top-level configuration for the MCP gateway.
type GatewayConfig struct {
	// Port is the TCP port to listen on.
	Port int `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`

	// Host is the interface to bind (e.g. "127.0.0.1", "0.0.0.0").
	Host string `yaml:"host" mapstructure:"host" validate:"required"`

	// Environment selects deployment behavior: "development" or "production".
	// Production tightens boot validation and disables the simulate-org header.
	Environment string `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development production"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins is the CORS allowlist. Required non-empty in production.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// CORSCredentials enables Access-Control-Allow-Credentials.
	CORSCredentials bool `yaml:"cors_credentials" mapstructure:"cors_credentials"`

	// SecurityHeaders are extra response headers emitted on every reply
	// (e.g. Strict-Transport-Security). Optional.
	SecurityHeaders map[string]string `yaml:"security_headers" mapstructure:"security_headers"`

	// JWTSecret signs session tokens and verifies identity-provider bearers.
	// Must be at least 32 characters in production.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`

	// MCPAPIKey is the gateway API key checked by the admission gate.
	MCPAPIKey string `yaml:"mcp_api_key" mapstructure:"mcp_api_key"`

	// RequireAPIKey gates /mcp behind an API key or bearer token. Default true.
	RequireAPIKey bool `yaml:"require_api_key" mapstructure:"require_api_key"`

	// SessionTimeoutMs is the idle session expiry in milliseconds.
	SessionTimeoutMs int `yaml:"session_timeout" mapstructure:"session_timeout" validate:"omitempty,min=1000"`

	// MaxConcurrentSessions is the global session budget.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions" validate:"omitempty,min=1"`

	// EnableRateLimit turns the admission rate limiter on or off.
	EnableRateLimit bool `yaml:"enable_rate_limit" mapstructure:"enable_rate_limit"`

	// RateLimitPerMinute is the per-key token bucket capacity and refill rate.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"omitempty,min=1"`

	// MaxRequestSizeMb caps request bodies before JSON parsing.
	MaxRequestSizeMb int `yaml:"max_request_size_mb" mapstructure:"max_request_size_mb" validate:"omitempty,min=1"`

	// MCPServers declares the backend MCP servers, keyed by backend id.
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers" mapstructure:"mcp_servers" validate:"omitempty,dive"`
}

// MCPServerConfig declares a single backend MCP server.
type MCPServerConfig struct {
	// URL is the backend base URL; the gateway calls {url}/mcp and {url}/health.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`

	// Capabilities are the tool names, resource URIs, prompt names, and
	// generic methods this backend advertises. Immutable after registration.
	Capabilities []string `yaml:"capabilities" mapstructure:"capabilities"`

	// Description is a human-readable backend description.
	Description string `yaml:"description" mapstructure:"description"`

	// HealthCheckInterval is the probe period (e.g. "15s", "30s").
	// Defaults per environment: 15s development, 30s production.
	HealthCheckInterval string `yaml:"health_check_interval" mapstructure:"health_check_interval" validate:"omitempty"`

	// RequiresAuth marks backends that expect organization headers.
	RequiresAuth bool `yaml:"requires_auth" mapstructure:"requires_auth"`

	// MaxRetries bounds the internal retry loop for idempotent forwards.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"omitempty,min=0,max=10"`

	// MaxConnections caps concurrent in-flight forwards to this backend.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections" validate:"omitempty,min=1"`
}

// Default values applied by SetDefaults.
const (
	DefaultPort                  = 8080
	DefaultHost                  = "127.0.0.1"
	DefaultSessionTimeoutMs      = 1800000 // 30 minutes
	DefaultMaxConcurrentSessions = 100
	DefaultRateLimitPerMinute    = 100
	DefaultMaxRequestSizeMb      = 10
	DefaultMaxConnections        = 50
	DefaultMaxRetries            = 2
)

// SetDefaults fills unset optional fields with their defaults.
func (c *GatewayConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SessionTimeoutMs == 0 {
		c.SessionTimeoutMs = DefaultSessionTimeoutMs
	}
	if c.MaxConcurrentSessions == 0 {
		c.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if c.MaxRequestSizeMb == 0 {
		c.MaxRequestSizeMb = DefaultMaxRequestSizeMb
	}

	for id, srv := range c.MCPServers {
		if srv.HealthCheckInterval == "" {
			if c.IsProduction() {
				srv.HealthCheckInterval = "30s"
			} else {
				srv.HealthCheckInterval = "15s"
			}
		}
		if srv.MaxConnections == 0 {
			srv.MaxConnections = DefaultMaxConnections
		}
		if srv.MaxRetries == 0 {
			srv.MaxRetries = DefaultMaxRetries
		}
		c.MCPServers[id] = srv
	}
}

// SetDevDefaults applies permissive development defaults. In development,
// a missing API key falls back to the well-known dev key and a missing
// JWT secret gets a fixed development value so the gateway can boot with
// zero configuration. Production validation rejects both.
func (c *GatewayConfig) SetDevDefaults() {
	if c.IsProduction() {
		return
	}
	if c.MCPAPIKey == "" {
		c.MCPAPIKey = DevAPIKey
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-jwt-secret-do-not-use-in-prod"
	}
}

// IsProduction reports whether the gateway runs with production hardening.
func (c *GatewayConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SessionTimeout returns the idle expiry as a duration.
func (c *GatewayConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}

// MaxRequestSizeBytes returns the body cap in bytes.
func (c *GatewayConfig) MaxRequestSizeBytes() int64 {
	return int64(c.MaxRequestSizeMb) << 20
}

// ProbeInterval parses a backend's health check interval, falling back to
// the environment default on empty or malformed values.
func (c *GatewayConfig) ProbeInterval(srv MCPServerConfig) time.Duration {
	if d, err := time.ParseDuration(srv.HealthCheckInterval); err == nil && d > 0 {
		return d
	}
	if c.IsProduction() {
		return 30 * time.Second
	}
	return 15 * time.Second
}
