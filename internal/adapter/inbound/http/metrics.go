// Package http provides the inbound HTTP transport adapter for the gateway.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.GaugeFunc
	BackendHealthy   *prometheus.GaugeVec
	ForwardsTotal    *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// sessionCount feeds the active-sessions gauge; pass the session manager's
// Count method.
func NewMetrics(reg prometheus.Registerer, sessionCount func() int) *Metrics {
	if sessionCount == nil {
		sessionCount = func() int { return 0 }
	}
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_gateway",
				Name:      "requests_total",
				Help:      "Total number of MCP requests processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_gateway",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "mcp_gateway",
				Name:      "active_sessions",
				Help:      "Number of active sessions",
			},
			func() float64 { return float64(sessionCount()) },
		),
		BackendHealthy: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mcp_gateway",
				Name:      "backend_healthy",
				Help:      "Whether a backend's most recent health probe succeeded",
			},
			[]string{"backend"},
		),
		ForwardsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_gateway",
				Name:      "forwards_total",
				Help:      "Total forwards to backends by outcome",
			},
			[]string{"backend", "outcome"}, // outcome=ok/error/unavailable
		),
		RateLimitedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_gateway",
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),
	}
}

// RecordForward implements the pipeline's outcome recorder.
func (m *Metrics) RecordForward(backendID, outcome string) {
	m.ForwardsTotal.WithLabelValues(backendID, outcome).Inc()
}
