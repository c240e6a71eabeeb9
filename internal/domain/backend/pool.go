package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProbeTimeout caps a single health probe.
const ProbeTimeout = 5 * time.Second

// Prober checks a backend's health endpoint. The default implementation
// issues GET {baseURL}/health; any 2xx is healthy.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// httpProber is the production Prober.
type httpProber struct {
	client *http.Client
}

func (p *httpProber) Probe(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe returned %d", resp.StatusCode)
	}
	return nil
}

// Pool holds one logical Server per backend id and runs one probe goroutine
// per backend. Probes are independent and never block request handling.
type Pool struct {
	servers map[string]*Server
	mu      sync.RWMutex

	prober Prober
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithProber overrides the health prober (used by tests).
func WithProber(p Prober) PoolOption {
	return func(pool *Pool) {
		pool.prober = p
	}
}

// NewPool creates an empty backend pool.
func NewPool(logger *slog.Logger, opts ...PoolOption) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		servers: make(map[string]*Server),
		prober:  &httpProber{client: &http.Client{}},
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a backend to the pool. Duplicate ids are rejected.
// Registration must complete before StartProbes.
func (p *Pool) Register(srv *Server) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.servers[srv.ID]; exists {
		return fmt.Errorf("backend %s already registered", srv.ID)
	}
	p.servers[srv.ID] = srv
	return nil
}

// Get returns the server for a backend id regardless of health.
func (p *Pool) Get(id string) (*Server, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	srv, ok := p.servers[id]
	return srv, ok
}

// IDs returns all registered backend ids.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.servers))
	for id := range p.servers {
		ids = append(ids, id)
	}
	return ids
}

// Acquire hands out the backend when it is healthy and under its connection
// budget, incrementing the in-flight counter. Returns nil otherwise, with no
// side effects.
func (p *Pool) Acquire(id string) *Server {
	srv, ok := p.Get(id)
	if !ok || !srv.Healthy() {
		return nil
	}

	// Optimistic increment, then re-check the budget and the health flag
	// that may have flipped between the load and the add.
	if srv.active.Add(1) > int64(srv.MaxConnections) {
		srv.active.Add(-1)
		return nil
	}
	if !srv.Healthy() {
		p.Release(srv)
		return nil
	}
	return srv
}

// Release returns a backend instance. The counter is clamped at zero so a
// release without a matching acquire never goes negative.
func (p *Pool) Release(srv *Server) {
	if srv == nil {
		return
	}
	for {
		v := srv.active.Load()
		if v <= 0 {
			return
		}
		if srv.active.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// StartProbes launches one probe goroutine per registered backend.
// Each goroutine probes immediately, then on its configured interval.
func (p *Pool) StartProbes() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, srv := range p.servers {
		p.wg.Add(1)
		go p.probeLoop(srv)
	}
}

// probeLoop drives the Unknown -> Healthy <-> Unhealthy state machine for a
// single backend. State changes only at probe boundaries; edge transitions
// log a single line and steady-state probes are silent.
func (p *Pool) probeLoop(srv *Server) {
	defer p.wg.Done()

	interval := srv.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	p.probeOnce(srv)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(srv)
		}
	}
}

// probeOnce runs a single probe and records the transition.
func (p *Pool) probeOnce(srv *Server) {
	err := p.prober.Probe(p.ctx, srv.BaseURL)
	now := time.Now().UTC()

	next := HealthHealthy
	if err != nil {
		next = HealthUnhealthy
	}

	prev := srv.setHealth(next, now)
	if prev == next {
		return
	}

	if next == HealthHealthy {
		p.logger.Info("backend healthy", "backend", srv.ID, "url", srv.BaseURL)
	} else {
		p.logger.Warn("backend unhealthy", "backend", srv.ID, "url", srv.BaseURL, "error", err)
	}
}

// ServerStatus is a point-in-time view of one backend for /health.
type ServerStatus struct {
	ID           string
	Instances    int
	Healthy      int
	Capabilities []string
	LastCheck    time.Time
	Active       int
}

// Snapshot returns the health view of every backend.
func (p *Pool) Snapshot() []ServerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(p.servers))
	for _, srv := range p.servers {
		healthy := 0
		if srv.Healthy() {
			healthy = 1
		}
		statuses = append(statuses, ServerStatus{
			ID:           srv.ID,
			Instances:    1,
			Healthy:      healthy,
			Capabilities: srv.Capabilities,
			LastCheck:    srv.LastCheck(),
			Active:       srv.ActiveConnections(),
		})
	}
	return statuses
}

// Close cancels all probe goroutines and waits for them to exit.
// Safe to call repeatedly.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
	})
	p.wg.Wait()
}
