package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initDiscoveryMetrics() {
	r.DiscoveryRoundsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "metaraft_discovery_rounds_total",
			Help: "Total number of discovery tick rounds executed",
		},
	)

	r.DiscoveryPeersKnown = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "metaraft_discovery_peers_known",
			Help: "Number of peers currently known to the discovery session",
		},
	)

	r.DiscoveryRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "metaraft_discovery_requests_total",
			Help: "Total number of discovery peer-exchange requests",
		},
		[]string{"direction", "status"}, // inbound/outbound, ok/error
	)

	r.DiscoveryDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metaraft_discovery_duration_seconds",
			Help:    "Duration of a full discovery run in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		},
	)
}
