package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRPCMetrics() {
	r.RPCRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "metaraft_rpc_requests_total",
			Help: "Total number of node-to-node RPC requests handled",
		},
		[]string{"verb", "status"},
	)

	r.RPCRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metaraft_rpc_request_duration_seconds",
			Help:    "Duration of node-to-node RPC requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"verb"},
	)
}
