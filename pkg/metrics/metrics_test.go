package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.DiscoveryRoundsTotal == nil {
		t.Error("DiscoveryRoundsTotal not initialized")
	}
	if r.Group0Status == nil {
		t.Error("Group0Status not initialized")
	}
	if r.RPCRequestsTotal == nil {
		t.Error("RPCRequestsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordRPCRequest(t *testing.T) {
	r := NewRegistry()

	r.RecordRPCRequest("discover", "ok", 5*time.Millisecond)
	r.RecordRPCRequest("discover", "ok", 10*time.Millisecond)
	r.RecordRPCRequest("peer_exchange", "error", 2*time.Millisecond)

	counter, err := r.RPCRequestsTotal.GetMetricWithLabelValues("discover", "ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("discover/ok counter = %v, want 2", got)
	}
}

func TestRecordConfigChangeRetry(t *testing.T) {
	r := NewRegistry()

	r.RecordConfigChangeRetry("remove")
	r.RecordConfigChangeRetry("remove")
	r.RecordConfigChangeRetry("become_nonvoter")

	counter, err := r.Group0ConfigChangeRetries.GetMetricWithLabelValues("remove")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("remove retry counter = %v, want 2", got)
	}
}

func TestUpdateMemberMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateMemberMetrics(3, 1)

	gauge, err := r.Group0Members.GetMetricWithLabelValues("voter")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	if got := metric.GetGauge().GetValue(); got != 3 {
		t.Errorf("voter gauge = %v, want 3", got)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	r := NewRegistry()

	start := time.Now().Add(-2 * time.Second)
	r.UpdateSystemMetrics(start)

	var metric dto.Metric
	if err := r.UptimeSeconds.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	if got := metric.GetGauge().GetValue(); got < 2 {
		t.Errorf("uptime = %v, want >= 2", got)
	}
}
