package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGroup0Metrics() {
	r.Group0Status = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "metaraft_group0_status",
			Help: "Group 0 status for monitoring (0=disabled, 1=normal, 2=aborted)",
		},
	)

	r.Group0ConfigChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "metaraft_group0_config_changes_total",
			Help: "Total number of group 0 configuration change submissions",
		},
		[]string{"operation", "status"}, // join, become_nonvoter, make_nonvoter, leave, remove; committed/unknown/error
	)

	r.Group0ConfigChangeRetries = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "metaraft_group0_config_change_retries_total",
			Help: "Retries of configuration changes after commit-status-unknown outcomes",
		},
		[]string{"operation"},
	)

	r.Group0UpgradePhase = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "metaraft_group0_upgrade_phase",
			Help: "Current group 0 upgrade phase (0=not_started, 1=creating_group0, 2=migrating_metadata, 3=done)",
		},
	)

	r.Group0ReadBarrierDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metaraft_group0_read_barrier_duration_seconds",
			Help:    "Duration of linearizing read barriers in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.Group0Members = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metaraft_group0_members",
			Help: "Number of group 0 members by kind",
		},
		[]string{"kind"}, // voter, nonvoter
	)
}
