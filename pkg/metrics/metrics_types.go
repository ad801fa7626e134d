package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Discovery Metrics
	DiscoveryRoundsTotal   prometheus.Counter
	DiscoveryPeersKnown    prometheus.Gauge
	DiscoveryRequestsTotal *prometheus.CounterVec
	DiscoveryDuration      prometheus.Histogram

	// Group 0 Metrics
	Group0Status              prometheus.Gauge
	Group0ConfigChangesTotal  *prometheus.CounterVec
	Group0ConfigChangeRetries *prometheus.CounterVec
	Group0UpgradePhase        prometheus.Gauge
	Group0ReadBarrierDuration prometheus.Histogram
	Group0Members             *prometheus.GaugeVec

	// RPC Metrics
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initDiscoveryMetrics()
	r.initGroup0Metrics()
	r.initRPCMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
