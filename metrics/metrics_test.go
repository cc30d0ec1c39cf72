// Package metrics tests.
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSnapshotCounters(t *testing.T) {
	m := New()

	m.RecordRouted("skill-enhanced")
	m.RecordRouted("skill-enhanced")
	m.RecordRouted("fallback")
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordBreakerOpen()
	m.RecordRetry()
	m.RecordFallback()
	m.RecordDedupShared()
	m.RecordAssignment()
	m.RecordObservation()
	m.RecordAlert("critical")

	s := m.Snapshot()
	if s.RoutedTotal != 3 {
		t.Errorf("routed = %d, want 3", s.RoutedTotal)
	}
	if s.RoutedByStrategy["skill-enhanced"] != 2 || s.RoutedByStrategy["fallback"] != 1 {
		t.Errorf("by strategy = %v", s.RoutedByStrategy)
	}
	if s.CacheHits != 1 || s.CacheMisses != 3 {
		t.Errorf("cache = %d/%d, want 1/3", s.CacheHits, s.CacheMisses)
	}
	if got := s.CacheHitRate(); got != 0.25 {
		t.Errorf("hit rate = %f, want 0.25", got)
	}
	if s.BreakerOpens != 1 || s.RetriesTotal != 1 || s.FallbacksInvoked != 1 {
		t.Errorf("breaker/retry/fallback = %d/%d/%d, want 1/1/1", s.BreakerOpens, s.RetriesTotal, s.FallbacksInvoked)
	}
	if s.AssignmentsTotal != 1 || s.ObservationsTotal != 1 || s.AlertsTotal != 1 {
		t.Errorf("experiment counters = %d/%d/%d, want 1/1/1", s.AssignmentsTotal, s.ObservationsTotal, s.AlertsTotal)
	}
}

func TestCacheHitRateNoSamples(t *testing.T) {
	if got := (Snapshot{}).CacheHitRate(); got != 0 {
		t.Fatalf("hit rate with no samples = %f, want 0", got)
	}
}

func TestRegister(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Double registration on the same registry must fail.
	if err := m.Register(reg); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
}

func TestGlobalIsSingleton(t *testing.T) {
	if Global() != Global() {
		t.Fatal("Global returned different instances")
	}
}
