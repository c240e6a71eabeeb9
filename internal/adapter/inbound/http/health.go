package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/backend"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status    string                  `json:"status"` // "healthy" or "degraded"
	Timestamp string                  `json:"timestamp"`
	Servers   map[string]ServerHealth `json:"servers"`
}

// ServerHealth is the per-backend slice of the health snapshot.
type ServerHealth struct {
	Instances    int      `json:"instances"`
	Healthy      int      `json:"healthy"`
	Capabilities []string `json:"capabilities"`
	LastCheck    string   `json:"lastCheck,omitempty"` // ISO-8601
}

// HealthChecker renders the composite backend health snapshot.
type HealthChecker struct {
	pool *backend.Pool
}

// NewHealthChecker creates a HealthChecker over the backend pool.
func NewHealthChecker(pool *backend.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Check builds the snapshot. The gateway reports "degraded" when any
// backend is currently unhealthy; it still serves traffic for the rest.
func (h *HealthChecker) Check() HealthResponse {
	snap := h.pool.Snapshot()

	servers := make(map[string]ServerHealth, len(snap))
	status := "healthy"
	for _, s := range snap {
		sh := ServerHealth{
			Instances:    s.Instances,
			Healthy:      s.Healthy,
			Capabilities: s.Capabilities,
		}
		if !s.LastCheck.IsZero() {
			sh.LastCheck = s.LastCheck.Format(time.RFC3339)
		}
		if s.Healthy == 0 {
			status = "degraded"
		}
		servers[s.ID] = sh
	}

	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Servers:   servers,
	}
}

// Handler returns the HTTP handler for GET /health.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Check())
	})
}
