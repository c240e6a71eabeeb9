package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/org"
)

func TestOrganizationStoreLookup(t *testing.T) {
	s := NewOrganizationStore()
	s.Seed(&org.Organization{ID: "org-1", ExternalID: "ext-1", Name: "Acme"})

	o, err := s.ByID(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if o.ExternalID != "ext-1" {
		t.Errorf("unexpected org: %+v", o)
	}

	o, err = s.ByExternalID(context.Background(), "ext-1")
	if err != nil || o.ID != "org-1" {
		t.Errorf("ByExternalID: %+v, %v", o, err)
	}

	if _, err := s.ByID(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrganizationStoreSoftDelete(t *testing.T) {
	s := NewOrganizationStore()
	s.Seed(&org.Organization{ID: "org-1", ExternalID: "ext-1", Deleted: true})

	if _, err := s.ByID(context.Background(), "org-1"); !errors.Is(err, auth.ErrNotFound) {
		t.Error("soft-deleted organizations must not resolve")
	}
}

func TestOrganizationStoreCopyOnRead(t *testing.T) {
	s := NewOrganizationStore()
	s.Seed(&org.Organization{ID: "org-1", ExternalID: "ext-1", Name: "Acme"})

	o, _ := s.ByID(context.Background(), "org-1")
	o.Name = "Mutated"

	again, _ := s.ByID(context.Background(), "org-1")
	if again.Name != "Acme" {
		t.Error("store must return copies, not shared pointers")
	}
}

func TestAPIKeyStore(t *testing.T) {
	s := NewAPIKeyStore()
	s.SeedRaw("raw-key", auth.APIKey{OrganizationID: "org-1", Role: "admin"})

	hash := auth.HashKey("raw-key")
	key, err := s.ByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("ByHash failed: %v", err)
	}
	if key.OrganizationID != "org-1" || key.Role != "admin" {
		t.Errorf("unexpected key record: %+v", key)
	}

	at := time.Now().UTC()
	if err := s.TouchLastUsed(context.Background(), hash, at); err != nil {
		t.Fatalf("TouchLastUsed failed: %v", err)
	}
	key, _ = s.ByHash(context.Background(), hash)
	if !key.LastUsedAt.Equal(at) {
		t.Errorf("LastUsedAt not updated: %v", key.LastUsedAt)
	}

	if err := s.TouchLastUsed(context.Background(), "nope", at); !errors.Is(err, auth.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
