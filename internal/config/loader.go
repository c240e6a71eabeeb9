// Package config provides configuration loading for the MCP gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for mcp-gateway.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to avoid
// matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("mcp-gateway")
		viper.SetConfigType("yaml")
	}

	bindEnvVars()
}

// findConfigFile searches standard locations for an mcp-gateway config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-gateway"),
		"/etc/mcp-gateway",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcp-gateway"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindEnvVars binds config keys to their documented environment variables.
// These are bootstrap-only overrides; mcp_servers must come from the file.
func bindEnvVars() {
	_ = viper.BindEnv("port", "GATEWAY_PORT")
	_ = viper.BindEnv("host", "GATEWAY_HOST")
	_ = viper.BindEnv("allowed_origins", "ALLOWED_ORIGINS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("mcp_api_key", "MCP_API_KEY")
	_ = viper.BindEnv("session_timeout", "SESSION_TIMEOUT")
	_ = viper.BindEnv("max_concurrent_sessions", "MAX_CONCURRENT_SESSIONS")
	_ = viper.BindEnv("rate_limit_per_minute", "API_RATE_LIMIT")
	_ = viper.BindEnv("max_request_size_mb", "MAX_REQUEST_SIZE")
	_ = viper.BindEnv("cors_credentials", "CORS_CREDENTIALS")
	_ = viper.BindEnv("environment", "NODE_ENV")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates. The boot procedure exits 1 on error.
func LoadConfig() (*GatewayConfig, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use when CLI flags may override the
// environment before validation.
func LoadConfigRaw() (*GatewayConfig, error) {
	// RequireAPIKey defaults true; viper needs the default registered so an
	// absent key doesn't read as false.
	viper.SetDefault("require_api_key", true)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ALLOWED_ORIGINS arrives as CSV when set via environment.
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		parts := strings.Split(cfg.AllowedOrigins[0], ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		cfg.AllowedOrigins = origins
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
