package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/outbound/memory"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/service"
)

// Admission groups the admission-control settings applied ahead of the
// pipeline, in order: body size, CORS, security headers, API key gate,
// rate limit.
type Admission struct {
	MaxBodyBytes    int64
	AllowedOrigins  []string
	CORSCredentials bool
	SecurityHeaders map[string]string
	RequireAPIKey   bool
	GatewayAPIKey   string
	RateLimiter     *memory.MemoryRateLimiter // nil disables rate limiting
}

// Transport is the inbound adapter that terminates HTTP connections for the
// gateway: POST /mcp, GET /health, GET /mcp/ws, GET /metrics.
type Transport struct {
	pipeline      *service.Pipeline
	admission     Admission
	host          string
	port          int
	wsHandler     http.Handler
	healthChecker *HealthChecker
	sessionCount  func() int
	logger        *slog.Logger

	server          *http.Server
	metrics         *Metrics
	metricsRegistry *prometheus.Registry
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen host and port.
func WithAddr(host string, port int) Option {
	return func(t *Transport) {
		t.host = host
		t.port = port
	}
}

// WithWebSocketHandler mounts the WebSocket upgrade handler on /mcp/ws.
func WithWebSocketHandler(h http.Handler) Option {
	return func(t *Transport) {
		t.wsHandler = h
	}
}

// WithHealthChecker sets the checker behind GET /health.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithSessionCounter feeds the active-sessions gauge.
func WithSessionCounter(count func() int) Option {
	return func(t *Transport) {
		t.sessionCount = count
	}
}

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics supplies externally-created metrics and their registry, so
// the same instance can be shared with the pipeline recorder. When not set,
// the transport creates its own on first use.
func WithMetrics(m *Metrics, reg *prometheus.Registry) Option {
	return func(t *Transport) {
		t.metrics = m
		t.metricsRegistry = reg
	}
}

// NewTransport creates the HTTP transport for the given pipeline and
// admission settings.
func NewTransport(pipeline *service.Pipeline, admission Admission, opts ...Option) *Transport {
	t := &Transport{
		pipeline:  pipeline,
		admission: admission,
		host:      "127.0.0.1",
		port:      8080,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Metrics returns the transport's metrics, available after Start.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Handler builds the full middleware chain and mux. Exposed so tests can
// drive the transport through httptest without binding a port.
func (t *Transport) Handler() http.Handler {
	if t.metrics == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		t.metrics = NewMetrics(reg, t.sessionCount)
		t.metricsRegistry = reg
	}

	mcp := t.admitted(mcpHandler(t.pipeline), true)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.metricsRegistry, promhttp.HandlerOpts{
		Registry: t.metricsRegistry,
	}))
	if t.wsHandler != nil {
		mux.Handle("/mcp/ws", t.admitted(t.wsHandler, false))
	}
	mux.Handle("/mcp", mcp)

	return mux
}

// admitted wraps a handler with the admission chain. withBody controls the
// body-size cap (meaningless on the WebSocket upgrade).
// Middleware order, outermost first: metrics, request id, real ip,
// body size, CORS, security headers, credentials, API key gate, rate limit.
func (t *Transport) admitted(h http.Handler, withBody bool) http.Handler {
	adm := t.admission

	if adm.RateLimiter != nil {
		h = RateLimitMiddleware(adm.RateLimiter, t.metrics)(h)
	}
	if adm.RequireAPIKey {
		h = APIKeyGateMiddleware(adm.GatewayAPIKey)(h)
	}
	h = CredentialsMiddleware(h)
	h = SecurityHeadersMiddleware(adm.SecurityHeaders)(h)
	h = CORSMiddleware(adm.AllowedOrigins, adm.CORSCredentials)(h)
	if withBody && adm.MaxBodyBytes > 0 {
		h = BodySizeLimitMiddleware(adm.MaxBodyBytes)(h)
	}
	h = RealIPMiddleware(h)
	h = RequestIDMiddleware(t.logger)(h)
	h = MetricsMiddleware(t.metrics)(h)
	return h
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:    net.JoinHostPort(t.host, strconv.Itoa(t.port)),
		Handler: t.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown drains in-flight requests within a deadline, then closes.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
