// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package abtest runs controlled experiments over skill configurations.
// Users are assigned to a control or treatment variant, per-variant cost
// and latency observations accumulate, and analysis applies Welch's t-test
// to decide whether the treatment should be adopted.
package abtest

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
)

// Experiment lifecycle and lookup errors.
var (
	ErrExperimentExists   = errors.New("experiment already exists")
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrExperimentInactive = errors.New("experiment is not active")
	ErrUserNotAssigned    = errors.New("user is not assigned to the experiment")
	ErrInsufficientSample = errors.New("insufficient sample size for analysis")
)

// Variant identifies an experiment arm.
type Variant string

// Experiment variants.
const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// Analysis recommendations.
const (
	RecommendAdoptTreatment = "adopt_treatment"
	RecommendKeepControl    = "keep_control"
	RecommendContinue       = "continue_testing"
)

// recommendCostMargin is the cost change (fraction) a significant result
// must show before analysis recommends either arm.
const recommendCostMargin = 0.10

// Experiment defines one controlled comparison of skill configurations.
type Experiment struct {
	// ID uniquely identifies the experiment. Generated when empty.
	ID string `json:"id"`

	// Name and Description are for operators.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// ControlSkills and TreatmentSkills are the skill IDs each variant
	// applies.
	ControlSkills   []string `json:"control_skills"`
	TreatmentSkills []string `json:"treatment_skills"`

	// AssignmentStrategy is "hash" (deterministic, sticky across restarts)
	// or "random". Empty uses the framework default.
	AssignmentStrategy string `json:"assignment_strategy"`

	// SignificanceLevel is the p-value threshold for this experiment. Zero
	// uses the framework default.
	SignificanceLevel float64 `json:"significance_level"`

	// MinimumSampleSize is the per-variant observation count required for
	// analysis. Zero uses the framework default.
	MinimumSampleSize int `json:"minimum_sample_size"`

	// Active gates assignment and metric recording.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
}

// Observation is one recorded execution under a variant.
type Observation struct {
	Cost            float64   `json:"cost"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	TokensUsed      int       `json:"tokens_used"`
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp"`
}

// VariantStats summarizes one variant's observations.
type VariantStats struct {
	Samples             int     `json:"samples"`
	MeanCost            float64 `json:"mean_cost"`
	StdDevCost          float64 `json:"std_dev_cost"`
	MeanExecutionTimeMs float64 `json:"mean_execution_time_ms"`
	MeanTokens          float64 `json:"mean_tokens"`
	SuccessRate         float64 `json:"success_rate"`
}

// Analysis is the statistical comparison of the two variants.
type Analysis struct {
	ExperimentID string       `json:"experiment_id"`
	Control      VariantStats `json:"control"`
	Treatment    VariantStats `json:"treatment"`

	// TStatistic and PValue come from Welch's t-test on cost. The p-value
	// uses a normal approximation; read it together with the sample sizes.
	TStatistic float64 `json:"t_statistic"`
	PValue     float64 `json:"p_value"`

	// Significant reports PValue < the experiment's significance level.
	Significant bool `json:"significant"`

	// CostChange, ExecutionTimeChange, and TokensChange are
	// treatment-relative-to-control fractions; negative means the
	// treatment improved.
	CostChange          float64 `json:"cost_change"`
	ExecutionTimeChange float64 `json:"execution_time_change"`
	TokensChange        float64 `json:"tokens_change"`
	SuccessRateChange   float64 `json:"success_rate_change"`

	// Recommendation is adopt_treatment, keep_control, or continue_testing.
	Recommendation string    `json:"recommendation"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// experimentState is an experiment with its mutable assignment and
// observation records.
type experimentState struct {
	def          Experiment
	assignments  map[string]Variant
	observations map[Variant][]Observation
}

// Framework manages experiments, sticky variant assignment, and analysis.
type Framework struct {
	mu          sync.RWMutex
	experiments map[string]*experimentState
	cfg         config.ExperimentConfig
	m           *metrics.Metrics
}

// NewFramework creates a Framework. The metrics sink may be nil, in which
// case the shared global is used.
func NewFramework(cfg config.ExperimentConfig, m *metrics.Metrics) *Framework {
	full := config.Config{Experiment: cfg}
	full.Sanitize()
	if m == nil {
		m = metrics.Global()
	}
	return &Framework{
		experiments: make(map[string]*experimentState),
		cfg:         full.Experiment,
		m:           m,
	}
}

// CreateExperiment registers an experiment, filling defaults for empty
// fields. The returned value reflects the stored definition.
func (f *Framework) CreateExperiment(def Experiment) (*Experiment, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.AssignmentStrategy == "" {
		def.AssignmentStrategy = f.cfg.AssignmentStrategy
	}
	if def.AssignmentStrategy != "hash" && def.AssignmentStrategy != "random" {
		return nil, fmt.Errorf("unknown assignment strategy %q", def.AssignmentStrategy)
	}
	if def.SignificanceLevel <= 0 || def.SignificanceLevel >= 1 {
		def.SignificanceLevel = f.cfg.SignificanceLevel
	}
	if def.MinimumSampleSize <= 0 {
		def.MinimumSampleSize = f.cfg.MinimumSampleSize
	}
	def.Active = true
	def.CreatedAt = time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.experiments[def.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentExists, def.ID)
	}
	f.experiments[def.ID] = &experimentState{
		def:         def,
		assignments: make(map[string]Variant),
		observations: map[Variant][]Observation{
			VariantControl:   nil,
			VariantTreatment: nil,
		},
	}

	log.Infof("Created experiment %s (%s) with %s assignment", def.ID, def.Name, def.AssignmentStrategy)
	stored := def
	return &stored, nil
}

// GetExperiment returns a copy of the experiment definition.
func (f *Framework) GetExperiment(id string) (*Experiment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, ok := f.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	def := state.def
	return &def, nil
}

// ListExperiments returns copies of all experiment definitions.
func (f *Framework) ListExperiments() []Experiment {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Experiment, 0, len(f.experiments))
	for _, state := range f.experiments {
		out = append(out, state.def)
	}
	return out
}

// StopExperiment deactivates an experiment. Recorded data is retained and
// remains analyzable.
func (f *Framework) StopExperiment(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.experiments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}
	state.def.Active = false
	log.Infof("Stopped experiment %s", id)
	return nil
}

// AssignUser returns the user's variant, assigning one on first call.
// Assignment is sticky: repeated calls return the same variant. Hash
// assignment is deterministic across framework instances; random
// assignment is sticky only within this instance.
func (f *Framework) AssignUser(experimentID, userID string) (Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	if !state.def.Active {
		return "", fmt.Errorf("%w: %s", ErrExperimentInactive, experimentID)
	}

	if variant, ok := state.assignments[userID]; ok {
		return variant, nil
	}

	var variant Variant
	if state.def.AssignmentStrategy == "hash" {
		variant = hashVariant(experimentID, userID)
	} else if rand.Float64() < 0.5 {
		variant = VariantControl
	} else {
		variant = VariantTreatment
	}

	state.assignments[userID] = variant
	f.m.RecordAssignment()
	return variant, nil
}

// Assignment returns the user's existing variant without creating one.
func (f *Framework) Assignment(experimentID, userID string) (Variant, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	variant, ok := state.assignments[userID]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrUserNotAssigned, userID, experimentID)
	}
	return variant, nil
}

// RecordMetrics appends an observation under the user's assigned variant.
func (f *Framework) RecordMetrics(experimentID, userID string, obs Observation) error {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	if !state.def.Active {
		return fmt.Errorf("%w: %s", ErrExperimentInactive, experimentID)
	}
	variant, ok := state.assignments[userID]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUserNotAssigned, userID, experimentID)
	}

	state.observations[variant] = append(state.observations[variant], obs)
	f.m.RecordObservation()
	return nil
}

// SampleSizes returns the per-variant observation counts.
func (f *Framework) SampleSizes(experimentID string) (control, treatment int, err error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	return len(state.observations[VariantControl]), len(state.observations[VariantTreatment]), nil
}

// Summaries returns per-variant statistics without the analysis sample
// gate. Monitoring reads these while an experiment is still warming up.
func (f *Framework) Summaries(experimentID string) (control, treatment VariantStats, err error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return VariantStats{}, VariantStats{}, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	return summarize(state.observations[VariantControl]), summarize(state.observations[VariantTreatment]), nil
}

// AnalyzeExperiment compares the variants. Both must have at least the
// experiment's minimum sample size or ErrInsufficientSample is returned.
func (f *Framework) AnalyzeExperiment(experimentID string) (*Analysis, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, ok := f.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}

	control := state.observations[VariantControl]
	treatment := state.observations[VariantTreatment]
	if len(control) < state.def.MinimumSampleSize || len(treatment) < state.def.MinimumSampleSize {
		return nil, fmt.Errorf("%w: control=%d treatment=%d minimum=%d",
			ErrInsufficientSample, len(control), len(treatment), state.def.MinimumSampleSize)
	}

	controlStats := summarize(control)
	treatmentStats := summarize(treatment)

	controlCosts := costsOf(control)
	treatmentCosts := costsOf(treatment)
	t := welchT(
		treatmentStats.MeanCost, sampleVariance(treatmentCosts), len(treatmentCosts),
		controlStats.MeanCost, sampleVariance(controlCosts), len(controlCosts),
	)
	p := pValueTwoTailed(t)

	analysis := &Analysis{
		ExperimentID:        experimentID,
		Control:             controlStats,
		Treatment:           treatmentStats,
		TStatistic:          t,
		PValue:              p,
		Significant:         p < state.def.SignificanceLevel,
		CostChange:          percentChange(controlStats.MeanCost, treatmentStats.MeanCost),
		ExecutionTimeChange: percentChange(controlStats.MeanExecutionTimeMs, treatmentStats.MeanExecutionTimeMs),
		TokensChange:        percentChange(controlStats.MeanTokens, treatmentStats.MeanTokens),
		SuccessRateChange:   treatmentStats.SuccessRate - controlStats.SuccessRate,
		AnalyzedAt:          time.Now(),
	}
	analysis.Recommendation = recommend(analysis)

	return analysis, nil
}

// recommend maps an analysis to an action. Only a significant result with
// a meaningful cost change moves off continue_testing.
func recommend(a *Analysis) string {
	if !a.Significant {
		return RecommendContinue
	}
	switch {
	case a.CostChange <= -recommendCostMargin:
		return RecommendAdoptTreatment
	case a.CostChange >= recommendCostMargin:
		return RecommendKeepControl
	default:
		return RecommendContinue
	}
}

// hashVariant derives a deterministic variant from the experiment and
// user IDs.
func hashVariant(experimentID, userID string) Variant {
	sum := sha256.Sum256([]byte(experimentID + ":" + userID))
	if sum[0]%2 == 0 {
		return VariantControl
	}
	return VariantTreatment
}

// summarize reduces observations to variant statistics.
func summarize(observations []Observation) VariantStats {
	stats := VariantStats{Samples: len(observations)}
	if stats.Samples == 0 {
		return stats
	}

	costs := costsOf(observations)
	var execSum, tokenSum float64
	var successes int
	for _, obs := range observations {
		execSum += obs.ExecutionTimeMs
		tokenSum += float64(obs.TokensUsed)
		if obs.Success {
			successes++
		}
	}

	stats.MeanCost = mean(costs)
	stats.StdDevCost = stdDev(costs)
	stats.MeanExecutionTimeMs = execSum / float64(stats.Samples)
	stats.MeanTokens = tokenSum / float64(stats.Samples)
	stats.SuccessRate = float64(successes) / float64(stats.Samples)
	return stats
}

func costsOf(observations []Observation) []float64 {
	costs := make([]float64, len(observations))
	for i, obs := range observations {
		costs[i] = obs.Cost
	}
	return costs
}
