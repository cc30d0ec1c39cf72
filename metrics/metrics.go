// Package metrics provides observability counters for the routing core.
// It combines a lock-free snapshot view (for in-process reporting) with
// prometheus collectors that embedders can register on their own registry.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks routing, caching, breaker, and experiment events.
type Metrics struct {
	routedTotal       atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	dedupShared       atomic.Int64
	breakerOpens      atomic.Int64
	fallbacksInvoked  atomic.Int64
	retriesTotal      atomic.Int64
	assignmentsTotal  atomic.Int64
	observationsTotal atomic.Int64
	alertsTotal       atomic.Int64

	strategyMu sync.RWMutex
	byStrategy map[string]int64

	startTime time.Time

	// prometheus collectors
	promRouted      *prometheus.CounterVec
	promCacheHits   prometheus.Counter
	promCacheMisses prometheus.Counter
	promDedupShared prometheus.Counter
	promBreakerOpen prometheus.Counter
	promFallbacks   prometheus.Counter
	promRetries     prometheus.Counter
	promAssignments prometheus.Counter
	promAlerts      *prometheus.CounterVec
}

// New creates a Metrics instance with unregistered prometheus collectors.
func New() *Metrics {
	return &Metrics{
		byStrategy: make(map[string]int64),
		startTime:  time.Now(),
		promRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "requests_routed_total",
			Help:      "Routing decisions produced, labeled by strategy.",
		}, []string{"strategy"}),
		promCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "cache_hits_total",
			Help:      "Cache hits across all optimizer caches.",
		}),
		promCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "cache_misses_total",
			Help:      "Cache misses across all optimizer caches.",
		}),
		promDedupShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "dedup_shared_total",
			Help:      "Calls that shared another caller's in-flight result.",
		}),
		promBreakerOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "breaker_opens_total",
			Help:      "Circuit breaker closed-to-open transitions.",
		}),
		promFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "fallbacks_invoked_total",
			Help:      "Degraded-path executions after breaker or retry exhaustion.",
		}),
		promRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "retries_total",
			Help:      "Retry attempts after a failed or timed-out execution.",
		}),
		promAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "experiment_assignments_total",
			Help:      "Experiment variant assignments created.",
		}),
		promAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Name:      "alerts_total",
			Help:      "Alerts emitted by deployments, labeled by severity.",
		}, []string{"severity"}),
	}
}

// Register registers all collectors on the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.promRouted, m.promCacheHits, m.promCacheMisses, m.promDedupShared,
		m.promBreakerOpen, m.promFallbacks, m.promRetries, m.promAssignments,
		m.promAlerts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRouted counts one routing decision for the given strategy.
func (m *Metrics) RecordRouted(strategy string) {
	m.routedTotal.Add(1)
	m.strategyMu.Lock()
	m.byStrategy[strategy]++
	m.strategyMu.Unlock()
	m.promRouted.WithLabelValues(strategy).Inc()
}

// RecordCacheHit counts one cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
	m.promCacheHits.Inc()
}

// RecordCacheMiss counts one cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
	m.promCacheMisses.Inc()
}

// RecordDedupShared counts a call that reused an in-flight result.
func (m *Metrics) RecordDedupShared() {
	m.dedupShared.Add(1)
	m.promDedupShared.Inc()
}

// RecordBreakerOpen counts a closed-to-open breaker transition.
func (m *Metrics) RecordBreakerOpen() {
	m.breakerOpens.Add(1)
	m.promBreakerOpen.Inc()
}

// RecordFallback counts a degraded-path execution.
func (m *Metrics) RecordFallback() {
	m.fallbacksInvoked.Add(1)
	m.promFallbacks.Inc()
}

// RecordRetry counts one retry attempt.
func (m *Metrics) RecordRetry() {
	m.retriesTotal.Add(1)
	m.promRetries.Inc()
}

// RecordAssignment counts one experiment assignment.
func (m *Metrics) RecordAssignment() {
	m.assignmentsTotal.Add(1)
	m.promAssignments.Inc()
}

// RecordObservation counts one experiment metric observation.
func (m *Metrics) RecordObservation() {
	m.observationsTotal.Add(1)
}

// RecordAlert counts one emitted alert of the given severity.
func (m *Metrics) RecordAlert(severity string) {
	m.alertsTotal.Add(1)
	m.promAlerts.WithLabelValues(severity).Inc()
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	RoutedTotal       int64            `json:"routed_total"`
	RoutedByStrategy  map[string]int64 `json:"routed_by_strategy"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	DedupShared       int64            `json:"dedup_shared"`
	BreakerOpens      int64            `json:"breaker_opens"`
	FallbacksInvoked  int64            `json:"fallbacks_invoked"`
	RetriesTotal      int64            `json:"retries_total"`
	AssignmentsTotal  int64            `json:"assignments_total"`
	ObservationsTotal int64            `json:"observations_total"`
	AlertsTotal       int64            `json:"alerts_total"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Snapshot returns a copy of the current counter state.
func (m *Metrics) Snapshot() Snapshot {
	m.strategyMu.RLock()
	byStrategy := make(map[string]int64, len(m.byStrategy))
	for k, v := range m.byStrategy {
		byStrategy[k] = v
	}
	m.strategyMu.RUnlock()

	return Snapshot{
		RoutedTotal:       m.routedTotal.Load(),
		RoutedByStrategy:  byStrategy,
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		DedupShared:       m.dedupShared.Load(),
		BreakerOpens:      m.breakerOpens.Load(),
		FallbacksInvoked:  m.fallbacksInvoked.Load(),
		RetriesTotal:      m.retriesTotal.Load(),
		AssignmentsTotal:  m.assignmentsTotal.Load(),
		ObservationsTotal: m.observationsTotal.Load(),
		AlertsTotal:       m.alertsTotal.Load(),
		UptimeSeconds:     int64(time.Since(m.startTime).Seconds()),
		Timestamp:         time.Now(),
	}
}

// CacheHitRate returns hits / (hits + misses), or 0 with no samples.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Global metrics instance shared by components that are not handed one.
var globalMetrics *Metrics
var once sync.Once

// Global returns the shared Metrics instance, initializing it if necessary.
func Global() *Metrics {
	once.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}
