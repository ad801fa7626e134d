package metrics

import (
	"runtime"
	"time"
)

// RecordRPCRequest records a handled node-to-node RPC request with its duration
func (r *Registry) RecordRPCRequest(verb, status string, duration time.Duration) {
	r.RPCRequestsTotal.WithLabelValues(verb, status).Inc()
	r.RPCRequestDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

// RecordDiscoveryRequest records a discovery peer-exchange request
func (r *Registry) RecordDiscoveryRequest(direction, status string) {
	r.DiscoveryRequestsTotal.WithLabelValues(direction, status).Inc()
}

// RecordConfigChange records a group 0 configuration change submission
func (r *Registry) RecordConfigChange(operation, status string) {
	r.Group0ConfigChangesTotal.WithLabelValues(operation, status).Inc()
}

// RecordConfigChangeRetry records a retry after a commit-status-unknown outcome
func (r *Registry) RecordConfigChangeRetry(operation string) {
	r.Group0ConfigChangeRetries.WithLabelValues(operation).Inc()
}

// SetGroup0Status sets the group 0 monitoring status gauge
func (r *Registry) SetGroup0Status(status float64) {
	r.Group0Status.Set(status)
}

// SetUpgradePhase sets the current upgrade phase gauge
func (r *Registry) SetUpgradePhase(phase float64) {
	r.Group0UpgradePhase.Set(phase)
}

// UpdateMemberMetrics updates the group 0 membership gauges
func (r *Registry) UpdateMemberMetrics(voters, nonvoters int) {
	r.Group0Members.WithLabelValues("voter").Set(float64(voters))
	r.Group0Members.WithLabelValues("nonvoter").Set(float64(nonvoters))
}

// UpdateSystemMetrics updates runtime metrics; call periodically
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
