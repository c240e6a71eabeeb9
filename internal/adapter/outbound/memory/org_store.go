// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/org"
)

// MemoryOrganizationStore implements auth.OrganizationStore with in-memory
// maps. Thread-safe for concurrent access. The production lookup layer is an
// external system; this store backs development and tests.
type MemoryOrganizationStore struct {
	mu         sync.RWMutex
	byID       map[string]*org.Organization
	byExternal map[string]*org.Organization
}

// NewOrganizationStore creates an empty organization store.
func NewOrganizationStore() *MemoryOrganizationStore {
	return &MemoryOrganizationStore{
		byID:       make(map[string]*org.Organization),
		byExternal: make(map[string]*org.Organization),
	}
}

// Seed registers an organization. Later seeds with the same id overwrite.
func (s *MemoryOrganizationStore) Seed(o *org.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *o
	s.byID[o.ID] = &c
	s.byExternal[o.ExternalID] = &c
}

// ByExternalID looks up an organization by its identity-provider id.
func (s *MemoryOrganizationStore) ByExternalID(_ context.Context, externalID string) (*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byExternal[externalID]
	if !ok || o.Deleted {
		return nil, auth.ErrNotFound
	}
	c := *o
	return &c, nil
}

// ByID looks up an organization by its internal id.
func (s *MemoryOrganizationStore) ByID(_ context.Context, id string) (*org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok || o.Deleted {
		return nil, auth.ErrNotFound
	}
	c := *o
	return &c, nil
}

// Compile-time interface verification.
var _ auth.OrganizationStore = (*MemoryOrganizationStore)(nil)
