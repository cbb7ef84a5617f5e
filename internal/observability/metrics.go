package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects gateway instrumentation.
//
// Tracked series:
//   - relay connection lifecycle (active gauge, reconnect counter)
//   - relay frames by type and direction
//   - verification sessions and per-check outcomes
//   - HTTP request counts by method, path, and status
//   - outbound provider calls by provider and status
//   - live call sessions held by the call manager
type Metrics struct {
	RelayConnections *prometheus.GaugeVec
	RelayFrames      *prometheus.CounterVec
	RelayReconnects  prometheus.Counter

	VerificationSessions *prometheus.CounterVec
	VerificationChecks   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec

	ProviderCalls *prometheus.CounterVec

	ActiveCalls prometheus.Gauge
}

// NewMetrics builds and registers the metric set on the given registerer.
// Pass prometheus.NewRegistry() in tests to avoid global registration clashes.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RelayConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxgate_relay_connections",
			Help: "Currently open relay websocket connections.",
		}, []string{"side"}),
		RelayFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_relay_frames_total",
			Help: "Relay frames processed, by frame type and direction.",
		}, []string{"type", "direction"}),
		RelayReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voxgate_relay_reconnects_total",
			Help: "Client reconnect attempts after abnormal closes.",
		}),
		VerificationSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_verification_sessions_total",
			Help: "Completed verification sessions by overall status.",
		}, []string{"status"}),
		VerificationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_verification_checks_total",
			Help: "Verification checks executed, by check type and status.",
		}, []string{"type", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_http_requests_total",
			Help: "HTTP API requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_provider_calls_total",
			Help: "Outbound provider API calls by provider and status.",
		}, []string{"provider", "status"}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxgate_active_calls",
			Help: "Live call sessions currently tracked by the call manager.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RelayConnections,
			m.RelayFrames,
			m.RelayReconnects,
			m.VerificationSessions,
			m.VerificationChecks,
			m.HTTPRequests,
			m.ProviderCalls,
			m.ActiveCalls,
		)
	}
	return m
}
