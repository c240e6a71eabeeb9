package auth

import (
	"context"
	"errors"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/org"
)

// ErrNotFound is returned by stores when a record doesn't exist.
var ErrNotFound = errors.New("record not found")

// APIKey is an API key record as stored by the lookup layer.
// The raw key is never stored; Hash is its SHA-256 hex digest.
type APIKey struct {
	// Hash is the SHA-256 hex digest of the raw key.
	Hash string
	// OrganizationID references the owning organization.
	OrganizationID string
	// UserID optionally binds the key to a user.
	UserID string
	// Role is the role granted by this key.
	Role string
	// ExpiresAt is the expiry instant; zero means no expiry.
	ExpiresAt time.Time
	// Deleted marks soft-deleted keys; they never resolve.
	Deleted bool
	// LastUsedAt is updated on every successful resolution.
	LastUsedAt time.Time
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired() bool {
	return !k.ExpiresAt.IsZero() && time.Now().UTC().After(k.ExpiresAt)
}

// OrganizationStore is the outbound port for organization lookup.
// The persistence layer behind it is external; in-memory and test fakes
// implement it here.
type OrganizationStore interface {
	// ByExternalID looks up an organization by its identity-provider id.
	// Returns ErrNotFound when absent or soft-deleted.
	ByExternalID(ctx context.Context, externalID string) (*org.Organization, error)

	// ByID looks up an organization by its internal id.
	ByID(ctx context.Context, id string) (*org.Organization, error)
}

// APIKeyStore is the outbound port for API key lookup.
type APIKeyStore interface {
	// ByHash looks up a key record by its SHA-256 hex digest.
	// Returns ErrNotFound when absent.
	ByHash(ctx context.Context, hash string) (*APIKey, error)

	// TouchLastUsed updates the key's LastUsedAt timestamp.
	TouchLastUsed(ctx context.Context, hash string, at time.Time) error
}
