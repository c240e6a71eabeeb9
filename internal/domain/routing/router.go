// Package routing maps request capabilities to backend ids.
package routing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/pkg/jsonrpc"
)

// Declared is a backend's declared capability set, used to build the map.
type Declared struct {
	// BackendID is the backend identifier.
	BackendID string
	// Capabilities are the tool names, resource URIs, prompt names, and
	// generic methods the backend advertises.
	Capabilities []string
}

// Router resolves a routing target to a backend id.
//
// The map is inverted from backend declarations at startup; each backend id
// is also registered as its own capability so generic calls can reach a
// backend by id. Rebuild swaps the whole map on backend set changes, so
// per-request resolution is a lock-free read under RLock.
type Router struct {
	mu           sync.RWMutex
	capabilities map[string]string // capability key -> backend id
}

// Build constructs a Router from backend declarations.
// Duplicate capability keys across backends are rejected.
func Build(declared []Declared) (*Router, error) {
	caps, err := invert(declared)
	if err != nil {
		return nil, err
	}
	return &Router{capabilities: caps}, nil
}

// Rebuild replaces the capability map from a new set of declarations.
// On error the existing map is left untouched.
func (r *Router) Rebuild(declared []Declared) error {
	caps, err := invert(declared)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.capabilities = caps
	r.mu.Unlock()
	return nil
}

// invert builds capability -> backendId, rejecting duplicates.
// Declarations are processed in backend-id order so rejection messages are
// deterministic.
func invert(declared []Declared) (map[string]string, error) {
	sorted := make([]Declared, len(declared))
	copy(sorted, declared)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BackendID < sorted[j].BackendID })

	caps := make(map[string]string)
	for _, d := range sorted {
		// The backend id itself is a capability.
		if owner, exists := caps[d.BackendID]; exists {
			return nil, fmt.Errorf("capability %q declared by both %s and %s", d.BackendID, owner, d.BackendID)
		}
		caps[d.BackendID] = d.BackendID

		for _, c := range d.Capabilities {
			if c == "" {
				return nil, fmt.Errorf("backend %s declares an empty capability", d.BackendID)
			}
			if owner, exists := caps[c]; exists && owner != d.BackendID {
				return nil, fmt.Errorf("capability %q declared by both %s and %s", c, owner, d.BackendID)
			}
			caps[c] = d.BackendID
		}
	}
	return caps, nil
}

// Resolve returns the backend id for a routing target.
// The specific key (tool name, resource URI, prompt name) takes precedence
// over the generic method key. Returns false when nothing matches.
func (r *Router) Resolve(target jsonrpc.RouteTarget) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key := target.CapabilityKey(); key != "" {
		if id, ok := r.capabilities[key]; ok {
			return id, true
		}
	}
	id, ok := r.capabilities[target.Method()]
	return id, ok
}

// Key returns the capability key a target resolves by, for error messages:
// the specific key when present, else the method.
func Key(target jsonrpc.RouteTarget) string {
	if key := target.CapabilityKey(); key != "" {
		return key
	}
	return target.Method()
}
