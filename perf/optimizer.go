// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package perf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
)

// Optimizer owns the four bounded caches used by the routing core, the
// in-flight deduplication group, and the rolling timing buffer.
type Optimizer struct {
	// Metadata caches skill metadata keyed by skill ID. The core receives
	// metadata inline with recommendations, so this cache is for embedder
	// registry implementations fronting a remote skill store.
	Metadata *Cache[any]

	// Patterns caches skill-selection results keyed by normalized task hash.
	Patterns *Cache[any]

	// Effectiveness caches computed effectiveness scores keyed by sorted
	// skill-ID set hash.
	Effectiveness *Cache[float64]

	// Results caches request results keyed by caller-chosen keys.
	Results *Cache[any]

	inflight singleflight.Group

	sampleMu   sync.Mutex
	samples    []TimingSample
	maxSamples int

	metrics *metrics.Metrics
}

// TimingSample is one measured operation.
type TimingSample struct {
	// Name identifies the measured operation.
	Name string `json:"name"`

	// DurationMs is the wall-clock duration in milliseconds.
	DurationMs float64 `json:"duration_ms"`

	// Cached reports whether the result was served from the result cache.
	Cached bool `json:"cached"`

	// Timestamp is when the measurement completed.
	Timestamp time.Time `json:"timestamp"`
}

// NewOptimizer creates an Optimizer from the perf configuration.
// The metrics sink may be nil, in which case the shared global is used.
func NewOptimizer(cfg config.PerfConfig, m *metrics.Metrics) *Optimizer {
	cfg = sanitized(cfg)
	if m == nil {
		m = metrics.Global()
	}
	return &Optimizer{
		Metadata:      NewCache[any](cfg.MetadataCacheSize, time.Duration(cfg.MetadataCacheTTLMs)*time.Millisecond),
		Patterns:      NewCache[any](cfg.PatternCacheSize, time.Duration(cfg.PatternCacheTTLMs)*time.Millisecond),
		Effectiveness: NewCache[float64](cfg.EffectivenessCacheSize, time.Duration(cfg.EffectivenessCacheTTLMs)*time.Millisecond),
		Results:       NewCache[any](cfg.ResultCacheSize, time.Duration(cfg.ResultCacheTTLMs)*time.Millisecond),
		maxSamples:    cfg.MaxTimingSamples,
		metrics:       m,
	}
}

func sanitized(cfg config.PerfConfig) config.PerfConfig {
	full := config.Config{Perf: cfg}
	full.Sanitize()
	return full.Perf
}

// Deduplicate executes op, collapsing concurrent calls with the same key
// onto a single execution whose result every caller receives. The in-flight
// entry is released once op settles, so a retry after a failure is not
// deduplicated against the failed attempt.
func (o *Optimizer) Deduplicate(key string, op func() (any, error)) (any, error) {
	v, err, shared := o.inflight.Do(key, op)
	if shared {
		o.metrics.RecordDedupShared()
	}
	return v, err
}

// Measure runs op with timing instrumentation. When cacheKey is non-empty
// and present in the result cache, the cached value is returned without
// invoking op and the sample is tagged cached. Successful results are
// written back to the result cache under cacheKey.
func (o *Optimizer) Measure(ctx context.Context, name string, cacheKey string, op func(context.Context) (any, error)) (any, error) {
	start := time.Now()

	if cacheKey != "" {
		if v, ok := o.Results.Get(cacheKey); ok {
			o.metrics.RecordCacheHit()
			o.record(TimingSample{
				Name:       name,
				DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
				Cached:     true,
				Timestamp:  time.Now(),
			})
			return v, nil
		}
		o.metrics.RecordCacheMiss()
	}

	v, err := op(ctx)

	o.record(TimingSample{
		Name:       name,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  time.Now(),
	})

	if err == nil && cacheKey != "" {
		o.Results.Set(cacheKey, v)
	}
	return v, err
}

// record appends a sample to the bounded rolling buffer.
func (o *Optimizer) record(s TimingSample) {
	o.sampleMu.Lock()
	defer o.sampleMu.Unlock()
	o.samples = append(o.samples, s)
	if len(o.samples) > o.maxSamples {
		o.samples = o.samples[len(o.samples)-o.maxSamples:]
	}
}

// OperationStats summarizes timing samples for one operation name.
type OperationStats struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	CachedCount  int     `json:"cached_count"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	AvgMs        float64 `json:"avg_ms"`
	P50Ms        float64 `json:"p50_ms"`
	P95Ms        float64 `json:"p95_ms"`
	P99Ms        float64 `json:"p99_ms"`
}

// Report aggregates the rolling timing buffer into per-operation statistics.
func (o *Optimizer) Report() []OperationStats {
	o.sampleMu.Lock()
	byName := make(map[string][]TimingSample)
	for _, s := range o.samples {
		byName[s.Name] = append(byName[s.Name], s)
	}
	o.sampleMu.Unlock()

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	report := make([]OperationStats, 0, len(names))
	for _, name := range names {
		samples := byName[name]
		durations := make([]float64, len(samples))
		var sum float64
		cached := 0
		for i, s := range samples {
			durations[i] = s.DurationMs
			sum += s.DurationMs
			if s.Cached {
				cached++
			}
		}
		sort.Float64s(durations)

		report = append(report, OperationStats{
			Name:         name,
			Count:        len(samples),
			CachedCount:  cached,
			CacheHitRate: float64(cached) / float64(len(samples)),
			AvgMs:        sum / float64(len(samples)),
			P50Ms:        percentile(durations, 0.50),
			P95Ms:        percentile(durations, 0.95),
			P99Ms:        percentile(durations, 0.99),
		})
	}
	return report
}

// ResetStats clears the timing buffer. Cache contents are untouched.
func (o *Optimizer) ResetStats() {
	o.sampleMu.Lock()
	o.samples = nil
	o.sampleMu.Unlock()
	log.Debug("Optimizer timing stats reset")
}

// percentile returns the p-quantile of sorted (ascending) durations using
// nearest-rank selection.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// NormalizeTask lowercases, trims, and collapses whitespace in a task
// description so equivalent phrasings hash identically.
func NormalizeTask(task string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(task))), " ")
}

// TaskKey returns the stable cache key for a task description.
func TaskKey(task string) string {
	sum := sha256.Sum256([]byte(NormalizeTask(task)))
	return fmt.Sprintf("task:%x", sum[:16])
}

// SkillSetKey returns the stable cache key for a set of skill IDs.
// IDs are sorted before hashing so order is irrelevant.
func SkillSetKey(skillIDs []string) string {
	ids := make([]string, len(skillIDs))
	copy(ids, skillIDs)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return fmt.Sprintf("skills:%x", sum[:16])
}
