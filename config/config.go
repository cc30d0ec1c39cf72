// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config defines the configuration surface for the skillrouter
// library. Every component reads an immutable Config value; updates replace
// the whole value through a Store rather than merging partial objects.
package config

// Config is the root configuration for the routing core.
type Config struct {
	// Perf configures the caching and deduplication layer.
	Perf PerfConfig `yaml:"perf" json:"perf"`

	// Selector configures skill selection and confidence scoring.
	Selector SelectorConfig `yaml:"selector" json:"selector"`

	// Router configures cost-benefit model routing.
	Router RouterConfig `yaml:"router" json:"router"`

	// Fallback configures circuit breakers, timeouts, and retries.
	Fallback FallbackConfig `yaml:"fallback" json:"fallback"`

	// Experiment holds defaults applied to new A/B experiments.
	Experiment ExperimentConfig `yaml:"experiment" json:"experiment"`

	// Rollout configures the canary stage ladder for deployments.
	Rollout RolloutConfig `yaml:"rollout" json:"rollout"`

	// Alerts configures monitoring thresholds for deployments.
	Alerts AlertConfig `yaml:"alerts" json:"alerts"`
}

// PerfConfig defines cache sizes, TTLs, and timing instrumentation limits.
type PerfConfig struct {
	// MetadataCacheSize is the maximum number of skill-metadata entries.
	// Default: 500.
	MetadataCacheSize int `yaml:"metadata_cache_size" json:"metadata_cache_size"`

	// MetadataCacheTTLMs is the metadata entry lifetime in milliseconds.
	// Default: 600000 (10 minutes).
	MetadataCacheTTLMs int64 `yaml:"metadata_cache_ttl_ms" json:"metadata_cache_ttl_ms"`

	// PatternCacheSize is the maximum number of pattern-match entries.
	// Default: 1000.
	PatternCacheSize int `yaml:"pattern_cache_size" json:"pattern_cache_size"`

	// PatternCacheTTLMs is the pattern entry lifetime in milliseconds.
	// Default: 300000 (5 minutes).
	PatternCacheTTLMs int64 `yaml:"pattern_cache_ttl_ms" json:"pattern_cache_ttl_ms"`

	// EffectivenessCacheSize is the maximum number of effectiveness entries.
	// Default: 500.
	EffectivenessCacheSize int `yaml:"effectiveness_cache_size" json:"effectiveness_cache_size"`

	// EffectivenessCacheTTLMs is the effectiveness entry lifetime. Default:
	// 120000 (2 minutes) so scores track fresh skill metrics.
	EffectivenessCacheTTLMs int64 `yaml:"effectiveness_cache_ttl_ms" json:"effectiveness_cache_ttl_ms"`

	// ResultCacheSize is the maximum number of request-result entries.
	// Default: 200.
	ResultCacheSize int `yaml:"result_cache_size" json:"result_cache_size"`

	// ResultCacheTTLMs is the request-result entry lifetime. Default: 60000.
	ResultCacheTTLMs int64 `yaml:"result_cache_ttl_ms" json:"result_cache_ttl_ms"`

	// MaxTimingSamples bounds the rolling buffer used for percentile
	// reporting. Default: 1000.
	MaxTimingSamples int `yaml:"max_timing_samples" json:"max_timing_samples"`
}

// SelectorConfig defines skill selection thresholds.
type SelectorConfig struct {
	// MaxSkillsPerRequest bounds how many candidates the registry is asked
	// for. Default: 3.
	MaxSkillsPerRequest int `yaml:"max_skills_per_request" json:"max_skills_per_request"`

	// MinConfidenceThreshold is the lowest relevance score that still yields
	// a fallback selection. Below it the selection strategy is "none".
	// Default: 0.5.
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold" json:"min_confidence_threshold"`

	// HighConfidenceThreshold is the score at or above which a single top
	// skill is selected outright. Default: 0.8.
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold" json:"high_confidence_threshold"`
}

// ModelTier describes one model pricing tier available to the router.
type ModelTier struct {
	// ID is the model identifier handed back in routing decisions.
	ID string `yaml:"id" json:"id"`

	// InputCostPerMTok is the USD price per million input tokens.
	InputCostPerMTok float64 `yaml:"input_cost_per_mtok" json:"input_cost_per_mtok"`

	// OutputCostPerMTok is the USD price per million output tokens.
	OutputCostPerMTok float64 `yaml:"output_cost_per_mtok" json:"output_cost_per_mtok"`
}

// RouterConfig defines cost-benefit routing behavior.
type RouterConfig struct {
	// HighEffectivenessThreshold routes to the cheapest tier with skills
	// when met. Default: 0.8. Adaptive tuning keeps it within
	// [0.70, 0.95].
	HighEffectivenessThreshold float64 `yaml:"high_effectiveness_threshold" json:"high_effectiveness_threshold"`

	// MediumEffectivenessThreshold routes to the mid tier with skills when
	// met. Default: 0.5. Adaptive tuning keeps it within [0.40, 0.70].
	MediumEffectivenessThreshold float64 `yaml:"medium_effectiveness_threshold" json:"medium_effectiveness_threshold"`

	// TargetSavingsPercentage is the minimum projected savings (percent of
	// the fallback-tier cost) a skill-enhanced decision must deliver, or the
	// router overrides it with the fallback decision. Default: 35.
	TargetSavingsPercentage float64 `yaml:"target_savings_percentage" json:"target_savings_percentage"`

	// ThresholdStep is the adjustment applied by adaptive threshold tuning.
	// Default: 0.02.
	ThresholdStep float64 `yaml:"threshold_step" json:"threshold_step"`

	// RouteBudgetMs is the soft latency budget for a single route() call.
	// Exceeding it is logged, never fatal. Default: 100.
	RouteBudgetMs int64 `yaml:"route_budget_ms" json:"route_budget_ms"`

	// TokenEstimator selects the token counting method for cost estimation.
	// Valid values: "tiktoken" (accurate), "simple" (fast approximation).
	// Default: "simple".
	TokenEstimator string `yaml:"token_estimator" json:"token_estimator"`

	// Cheap, Standard, and Premium define the three pricing tiers.
	Cheap    ModelTier `yaml:"cheap" json:"cheap"`
	Standard ModelTier `yaml:"standard" json:"standard"`
	Premium  ModelTier `yaml:"premium" json:"premium"`
}

// FallbackConfig defines circuit breaker and retry behavior.
type FallbackConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// skill's breaker. Default: 5.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// ResetTimeoutMs is how long an open breaker waits before allowing
	// half-open trial calls. Default: 30000.
	ResetTimeoutMs int64 `yaml:"reset_timeout_ms" json:"reset_timeout_ms"`

	// HalfOpenMaxAttempts bounds trial calls while half-open. Default: 3.
	HalfOpenMaxAttempts int `yaml:"half_open_max_attempts" json:"half_open_max_attempts"`

	// MaxRetries is the number of retries after the initial attempt. Nil
	// selects the default of 2 (three attempts total); an explicit 0
	// disables retries.
	MaxRetries *int `yaml:"max_retries" json:"max_retries"`

	// InitialDelayMs is the first backoff delay. Default: 500.
	InitialDelayMs int64 `yaml:"initial_delay_ms" json:"initial_delay_ms"`

	// MaxDelayMs caps the backoff delay. Default: 10000.
	MaxDelayMs int64 `yaml:"max_delay_ms" json:"max_delay_ms"`

	// BackoffMultiplier grows the delay between attempts. Default: 2.0.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`

	// TimeoutMs is the per-attempt execution budget. A timed-out attempt
	// counts as a retryable failure; the attempt's context is canceled so
	// the operation can stop its work. Default: 30000.
	TimeoutMs int64 `yaml:"timeout_ms" json:"timeout_ms"`

	// MaxEvents bounds the diagnostic event ring buffer. Default: 1000.
	MaxEvents int `yaml:"max_events" json:"max_events"`
}

// ExperimentConfig holds defaults applied when experiments are created.
type ExperimentConfig struct {
	// AssignmentStrategy is "hash" (deterministic, sticky) or "random".
	// Default: "hash".
	AssignmentStrategy string `yaml:"assignment_strategy" json:"assignment_strategy"`

	// SignificanceLevel is the p-value threshold for declaring a result
	// significant. Default: 0.05.
	SignificanceLevel float64 `yaml:"significance_level" json:"significance_level"`

	// MinimumSampleSize is the per-variant observation count required before
	// analysis. Default: 100.
	MinimumSampleSize int `yaml:"minimum_sample_size" json:"minimum_sample_size"`
}

// RolloutStage is one step of the canary ladder.
type RolloutStage struct {
	// Name identifies the stage in logs and alerts.
	Name string `yaml:"name" json:"name"`

	// Percentage of users exposed to the experiment at this stage (0-100).
	Percentage float64 `yaml:"percentage" json:"percentage"`

	// DurationMs is the minimum time spent in the stage before progression.
	DurationMs int64 `yaml:"duration_ms" json:"duration_ms"`

	// MinimumSamples is the observation count required before progression.
	MinimumSamples int `yaml:"minimum_samples" json:"minimum_samples"`
}

// RolloutConfig defines the canary rollout ladder and its success gates.
type RolloutConfig struct {
	// Stages is the ordered ladder. Default: 5% → 25% → 50% → 100%.
	Stages []RolloutStage `yaml:"stages" json:"stages"`

	// AutoProgress gates stage advancement on the success metrics below.
	AutoProgress bool `yaml:"auto_progress" json:"auto_progress"`

	// MinCostReduction is the minimum treatment cost reduction (fraction,
	// e.g. 0.10 for 10%) required when AutoProgress is set. Default: 0.10.
	MinCostReduction float64 `yaml:"min_cost_reduction" json:"min_cost_reduction"`

	// MaxExecutionTimeIncrease is the maximum tolerated treatment slowdown
	// (fraction) when AutoProgress is set. Default: 0.20.
	MaxExecutionTimeIncrease float64 `yaml:"max_execution_time_increase" json:"max_execution_time_increase"`
}

// AlertConfig defines monitoring thresholds checked after metric recording.
type AlertConfig struct {
	// MinSamples is the total observation count required before any
	// threshold is evaluated. Default: 10.
	MinSamples int `yaml:"min_samples" json:"min_samples"`

	// MaxErrorRate trips a critical alert when exceeded. Default: 0.10.
	MaxErrorRate float64 `yaml:"max_error_rate" json:"max_error_rate"`

	// MaxCostIncrease trips a warning when treatment cost exceeds control
	// by this fraction. Default: 0.20.
	MaxCostIncrease float64 `yaml:"max_cost_increase" json:"max_cost_increase"`

	// MaxExecutionTimeMs trips a warning when mean treatment execution time
	// exceeds it. Default: 10000.
	MaxExecutionTimeMs float64 `yaml:"max_execution_time_ms" json:"max_execution_time_ms"`

	// MaxAlerts bounds the retained alert ring buffer. Default: 500.
	MaxAlerts int `yaml:"max_alerts" json:"max_alerts"`
}

// Default returns a Config populated with documented defaults.
func Default() Config {
	cfg := Config{}
	cfg.Sanitize()
	return cfg
}

// Sanitize validates and normalizes the configuration in place, filling
// zero values with defaults and clamping out-of-range thresholds.
func (c *Config) Sanitize() {
	c.Perf.sanitize()
	c.Selector.sanitize()
	c.Router.sanitize()
	c.Fallback.sanitize()
	c.Experiment.sanitize()
	c.Rollout.sanitize()
	c.Alerts.sanitize()
}

func (p *PerfConfig) sanitize() {
	if p.MetadataCacheSize <= 0 {
		p.MetadataCacheSize = 500
	}
	if p.MetadataCacheTTLMs <= 0 {
		p.MetadataCacheTTLMs = 600000
	}
	if p.PatternCacheSize <= 0 {
		p.PatternCacheSize = 1000
	}
	if p.PatternCacheTTLMs <= 0 {
		p.PatternCacheTTLMs = 300000
	}
	if p.EffectivenessCacheSize <= 0 {
		p.EffectivenessCacheSize = 500
	}
	if p.EffectivenessCacheTTLMs <= 0 {
		p.EffectivenessCacheTTLMs = 120000
	}
	if p.ResultCacheSize <= 0 {
		p.ResultCacheSize = 200
	}
	if p.ResultCacheTTLMs <= 0 {
		p.ResultCacheTTLMs = 60000
	}
	if p.MaxTimingSamples <= 0 {
		p.MaxTimingSamples = 1000
	}
}

func (s *SelectorConfig) sanitize() {
	if s.MaxSkillsPerRequest <= 0 {
		s.MaxSkillsPerRequest = 3
	}
	if s.MinConfidenceThreshold <= 0 || s.MinConfidenceThreshold > 1 {
		s.MinConfidenceThreshold = 0.5
	}
	if s.HighConfidenceThreshold <= 0 || s.HighConfidenceThreshold > 1 {
		s.HighConfidenceThreshold = 0.8
	}
}

func (r *RouterConfig) sanitize() {
	if r.HighEffectivenessThreshold <= 0 || r.HighEffectivenessThreshold > 1 {
		r.HighEffectivenessThreshold = 0.8
	}
	if r.MediumEffectivenessThreshold <= 0 || r.MediumEffectivenessThreshold > 1 {
		r.MediumEffectivenessThreshold = 0.5
	}
	if r.TargetSavingsPercentage <= 0 {
		r.TargetSavingsPercentage = 35
	}
	if r.ThresholdStep <= 0 {
		r.ThresholdStep = 0.02
	}
	if r.RouteBudgetMs <= 0 {
		r.RouteBudgetMs = 100
	}
	if r.TokenEstimator != "tiktoken" && r.TokenEstimator != "simple" {
		r.TokenEstimator = "simple"
	}
	if r.Cheap.ID == "" {
		r.Cheap = ModelTier{ID: "claude-3-5-haiku", InputCostPerMTok: 0.80, OutputCostPerMTok: 4.00}
	}
	if r.Standard.ID == "" {
		r.Standard = ModelTier{ID: "claude-sonnet-4", InputCostPerMTok: 3.00, OutputCostPerMTok: 15.00}
	}
	if r.Premium.ID == "" {
		r.Premium = ModelTier{ID: "claude-opus-4", InputCostPerMTok: 15.00, OutputCostPerMTok: 75.00}
	}
}

func (f *FallbackConfig) sanitize() {
	if f.FailureThreshold <= 0 {
		f.FailureThreshold = 5
	}
	if f.ResetTimeoutMs <= 0 {
		f.ResetTimeoutMs = 30000
	}
	if f.HalfOpenMaxAttempts <= 0 {
		f.HalfOpenMaxAttempts = 3
	}
	if f.MaxRetries == nil || *f.MaxRetries < 0 {
		retries := 2
		f.MaxRetries = &retries
	}
	if f.InitialDelayMs <= 0 {
		f.InitialDelayMs = 500
	}
	if f.MaxDelayMs <= 0 {
		f.MaxDelayMs = 10000
	}
	if f.BackoffMultiplier <= 1 {
		f.BackoffMultiplier = 2.0
	}
	if f.TimeoutMs <= 0 {
		f.TimeoutMs = 30000
	}
	if f.MaxEvents <= 0 {
		f.MaxEvents = 1000
	}
}

func (e *ExperimentConfig) sanitize() {
	if e.AssignmentStrategy != "hash" && e.AssignmentStrategy != "random" {
		e.AssignmentStrategy = "hash"
	}
	if e.SignificanceLevel <= 0 || e.SignificanceLevel >= 1 {
		e.SignificanceLevel = 0.05
	}
	if e.MinimumSampleSize <= 0 {
		e.MinimumSampleSize = 100
	}
}

func (r *RolloutConfig) sanitize() {
	if len(r.Stages) == 0 {
		r.Stages = []RolloutStage{
			{Name: "canary", Percentage: 5, DurationMs: 3600000, MinimumSamples: 100},
			{Name: "early", Percentage: 25, DurationMs: 7200000, MinimumSamples: 500},
			{Name: "half", Percentage: 50, DurationMs: 14400000, MinimumSamples: 1000},
			{Name: "full", Percentage: 100, DurationMs: 86400000, MinimumSamples: 2000},
		}
	}
	for i := range r.Stages {
		if r.Stages[i].Percentage < 0 {
			r.Stages[i].Percentage = 0
		}
		if r.Stages[i].Percentage > 100 {
			r.Stages[i].Percentage = 100
		}
	}
	if r.MinCostReduction <= 0 {
		r.MinCostReduction = 0.10
	}
	if r.MaxExecutionTimeIncrease <= 0 {
		r.MaxExecutionTimeIncrease = 0.20
	}
}

func (a *AlertConfig) sanitize() {
	if a.MinSamples <= 0 {
		a.MinSamples = 10
	}
	if a.MaxErrorRate <= 0 {
		a.MaxErrorRate = 0.10
	}
	if a.MaxCostIncrease <= 0 {
		a.MaxCostIncrease = 0.20
	}
	if a.MaxExecutionTimeMs <= 0 {
		a.MaxExecutionTimeMs = 10000
	}
	if a.MaxAlerts <= 0 {
		a.MaxAlerts = 500
	}
}
