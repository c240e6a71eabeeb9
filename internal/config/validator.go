package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate validates the GatewayConfig using struct tags and cross-field
// rules. Production hardening rules run only when Environment is production.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateProbeIntervals(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.validateProduction(); err != nil {
			return err
		}
	}

	return nil
}

// validateProduction enforces the boot refusals for production deployments.
func (c *GatewayConfig) validateProduction() error {
	if c.MCPAPIKey == "" {
		return errors.New("mcp_api_key must be set in production")
	}
	if c.MCPAPIKey == DevAPIKey {
		return errors.New("mcp_api_key must not be the development key in production")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters in production")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("allowed_origins must not be empty in production")
	}
	return nil
}

// validateProbeIntervals rejects unparseable health check intervals up front
// so a typo fails at boot instead of silently falling back.
func (c *GatewayConfig) validateProbeIntervals() error {
	for id, srv := range c.MCPServers {
		if srv.HealthCheckInterval == "" {
			continue
		}
		d, err := time.ParseDuration(srv.HealthCheckInterval)
		if err != nil {
			return fmt.Errorf("mcp_servers[%s]: invalid health_check_interval %q: %w", id, srv.HealthCheckInterval, err)
		}
		if d < time.Second {
			return fmt.Errorf("mcp_servers[%s]: health_check_interval %q below 1s", id, srv.HealthCheckInterval)
		}
	}
	return nil
}

// formatValidationErrors converts validator errors into actionable messages.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		return fmt.Errorf("config field %s failed validation rule %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return err
}
