// Package auth resolves caller credentials to an organization context.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/org"
)

// Credentials are the raw authentication inputs extracted from a request.
type Credentials struct {
	// Bearer is the Authorization bearer token, without the "Bearer " prefix.
	Bearer string
	// APIKey is the x-api-key header value.
	APIKey string
	// SimulateOrg is the x-simulate-organization header value (dev only).
	SimulateOrg string
}

// Empty reports whether no credential was presented at all.
func (c Credentials) Empty() bool {
	return c.Bearer == "" && c.APIKey == "" && c.SimulateOrg == ""
}

// idpClaims are the identity-provider JWT claims the gateway reads.
// Only the organization id and subject matter; everything else is opaque.
type idpClaims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// Resolver maps credentials to an organization context.
// It never returns an error to the caller: an unresolvable credential logs a
// warning and yields nil; the caller decides policy.
type Resolver struct {
	orgs      OrganizationStore
	keys      APIKeyStore
	allowSim  bool
	logger    *slog.Logger
	jwtParser *jwt.Parser
}

// NewResolver creates a Resolver. allowSimulate enables the
// x-simulate-organization header and must be false in production.
func NewResolver(orgs OrganizationStore, keys APIKeyStore, allowSimulate bool, logger *slog.Logger) *Resolver {
	return &Resolver{
		orgs:     orgs,
		keys:     keys,
		allowSim: allowSimulate,
		logger:   logger,
		// The identity provider signs with its own key set; the gateway only
		// decodes claims and resolves the organization against its own store.
		jwtParser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
}

// Resolve applies the resolution order, first success wins:
// bearer JWT, then API key, then the dev-only simulate header.
// Returns nil when nothing resolves.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) *org.Context {
	if creds.Empty() {
		return nil
	}

	if creds.Bearer != "" {
		if octx := r.resolveBearer(ctx, creds.Bearer); octx != nil {
			return octx
		}
	}

	if creds.APIKey != "" {
		if octx := r.resolveAPIKey(ctx, creds.APIKey); octx != nil {
			return octx
		}
	}

	if creds.SimulateOrg != "" && r.allowSim {
		if octx := r.resolveSimulated(ctx, creds.SimulateOrg); octx != nil {
			return octx
		}
	}

	r.logger.Warn("credentials present but unresolvable")
	return nil
}

// resolveBearer decodes the bearer as an identity-provider JWT and looks up
// the organization by its external id.
//
// Gateway session tokens also arrive as bearers; they are not JWTs and fail
// the parse here. The session manager intercepts them before resolution, so
// falling through silently is correct.
func (r *Resolver) resolveBearer(ctx context.Context, bearer string) *org.Context {
	var claims idpClaims
	_, _, err := r.jwtParser.ParseUnverified(bearer, &claims)
	if err != nil {
		return nil
	}
	if claims.OrgID == "" {
		r.logger.Warn("bearer JWT missing org_id claim")
		return nil
	}

	o, err := r.orgs.ByExternalID(ctx, claims.OrgID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("organization lookup failed", "error", err)
		} else {
			r.logger.Warn("no organization for external id", "external_id", claims.OrgID)
		}
		return nil
	}

	return &org.Context{
		OrganizationID:         o.ID,
		OrganizationExternalID: o.ExternalID,
		UserID:                 claims.Subject,
	}
}

// resolveAPIKey hashes the raw key with SHA-256 and looks up the record.
func (r *Resolver) resolveAPIKey(ctx context.Context, rawKey string) *org.Context {
	hash := HashKey(rawKey)

	key, err := r.keys.ByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("api key lookup failed", "error", err)
		}
		return nil
	}
	if key.Deleted || key.IsExpired() {
		r.logger.Warn("api key expired or revoked")
		return nil
	}

	if err := r.keys.TouchLastUsed(ctx, hash, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to update api key last_used_at", "error", err)
	}

	o, err := r.orgs.ByID(ctx, key.OrganizationID)
	if err != nil {
		r.logger.Warn("organization lookup failed for api key", "error", err)
		return nil
	}

	return &org.Context{
		OrganizationID:         o.ID,
		OrganizationExternalID: o.ExternalID,
		UserID:                 key.UserID,
		Role:                   key.Role,
	}
}

// resolveSimulated resolves the dev-only simulate header through the same
// org store, so a bogus id still yields no context.
func (r *Resolver) resolveSimulated(ctx context.Context, orgID string) *org.Context {
	o, err := r.orgs.ByID(ctx, orgID)
	if err != nil {
		o2, err2 := r.orgs.ByExternalID(ctx, orgID)
		if err2 != nil {
			r.logger.Warn("simulated organization not found", "org", orgID)
			return nil
		}
		o = o2
	}

	return &org.Context{
		OrganizationID:         o.ID,
		OrganizationExternalID: o.ExternalID,
	}
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}
