// ABOUTME: Prometheus collectors for connections, dispatch, backends and lifecycle
// ABOUTME: Registered on the default registry through promauto

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveDelegators   = promauto.NewGauge(prometheus.GaugeOpts{Name: "recgate_live_delegators", Help: "Connections currently served"})
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "recgate_connections_total", Help: "Connections accepted"})
	RequestsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recgate_requests_total", Help: "Requests by protocol, action and outcome"}, []string{"protocol", "action", "outcome"})
	DispatchSeconds  = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "recgate_dispatch_seconds", Help: "Backend dispatch latency", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16)}, []string{"action"})

	BoundBackends     = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "recgate_bound_backends", Help: "Backends currently bound per registry"}, []string{"registry"})
	BindFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "recgate_bind_failures_total", Help: "Failed backend binds"})
	PrunedTotal       = promauto.NewCounter(prometheus.CounterOpts{Name: "recgate_pruned_backends_total", Help: "Backends removed after a failed probe"})

	LifecycleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recgate_lifecycle_events_total", Help: "Gateway lifecycle events by kind"}, []string{"kind"})
	AuthFailuresTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recgate_auth_failures_total", Help: "Rejected credentials by surface"}, []string{"surface"})
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDenied    = "denied"
	OutcomeNoBackend = "no_backend"
	OutcomeMalformed = "malformed"
)
