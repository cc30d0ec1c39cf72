// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package deploy rolls a treatment skill configuration out to production
// traffic in stages. A deployment joins the router and the experiment
// framework: a growing percentage of users participate in the experiment,
// outcomes feed variant statistics, and monitoring thresholds raise alerts
// while the stage ladder gates full exposure.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/draftwise/skillrouter/abtest"
	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/fallback"
	"github.com/draftwise/skillrouter/metrics"
	"github.com/draftwise/skillrouter/router"
	"github.com/draftwise/skillrouter/selector"
)

// Rollout progression errors.
var (
	ErrRolloutComplete = errors.New("rollout is already at the final stage")
	ErrRolloutAtStart  = errors.New("rollout is already at the first stage")
	ErrStageNotReady   = errors.New("current stage has not met its progression gates")
)

// RoutedRequest is the outcome of routing one user's request through a
// deployment.
type RoutedRequest struct {
	// Decision is what the caller should execute.
	Decision *router.Decision `json:"decision"`

	// Participant reports whether the user falls inside the current stage
	// percentage. Non-participants get the control path without an
	// experiment assignment.
	Participant bool `json:"participant"`

	// Variant is the experiment arm for participants, empty otherwise.
	Variant abtest.Variant `json:"variant,omitempty"`
}

// RolloutStatus describes the current stage and its progression gates.
type RolloutStatus struct {
	StageIndex       int                 `json:"stage_index"`
	Stage            config.RolloutStage `json:"stage"`
	StageStartedAt   time.Time           `json:"stage_started_at"`
	ElapsedMs        int64               `json:"elapsed_ms"`
	ControlSamples   int                 `json:"control_samples"`
	TreatmentSamples int                 `json:"treatment_samples"`

	// Ready reports whether every progression gate passes. Blockers lists
	// the gates that do not.
	Ready    bool     `json:"ready"`
	Blockers []string `json:"blockers,omitempty"`

	// Analysis is present when both variants clear the experiment's
	// minimum sample size.
	Analysis *abtest.Analysis `json:"analysis,omitempty"`
}

// Deployment stages a treatment configuration into traffic.
type Deployment struct {
	router       *router.Router
	framework    *abtest.Framework
	experimentID string
	cfg          config.RolloutConfig
	alertCfg     config.AlertConfig
	m            *metrics.Metrics

	mu             sync.Mutex
	stage          int
	stageStartedAt time.Time
	channels       []AlertChannel
	alerts         []Alert

	now func() time.Time
}

// New creates a Deployment for an existing experiment, starting at the
// first rollout stage with the log alert channel registered. The metrics
// sink may be nil, in which case the shared global is used.
func New(r *router.Router, f *abtest.Framework, experimentID string, rolloutCfg config.RolloutConfig, alertCfg config.AlertConfig, m *metrics.Metrics) (*Deployment, error) {
	if _, err := f.GetExperiment(experimentID); err != nil {
		return nil, err
	}

	full := config.Config{Rollout: rolloutCfg, Alerts: alertCfg}
	full.Sanitize()
	if m == nil {
		m = metrics.Global()
	}

	d := &Deployment{
		router:         r,
		framework:      f,
		experimentID:   experimentID,
		cfg:            full.Rollout,
		alertCfg:       full.Alerts,
		m:              m,
		channels:       []AlertChannel{LogChannel{}},
		stageStartedAt: time.Now(),
		now:            time.Now,
	}
	log.Infof("Deployment for experiment %s starting at stage %q (%.0f%%)",
		experimentID, d.cfg.Stages[0].Name, d.cfg.Stages[0].Percentage)
	return d, nil
}

// RouteWithExperiment routes one user's request under the rollout. Users
// outside the current stage percentage get the control path without being
// assigned; participants are assigned a variant, and treatment users get
// the router's full decision.
func (d *Deployment) RouteWithExperiment(ctx context.Context, userID string, req *selector.Request) (*RoutedRequest, error) {
	d.mu.Lock()
	percentage := d.cfg.Stages[d.stage].Percentage
	d.mu.Unlock()

	decision := d.router.Route(ctx, req)

	if !participates(d.experimentID, userID, percentage) {
		return &RoutedRequest{Decision: controlDecision(decision)}, nil
	}

	variant, err := d.framework.AssignUser(d.experimentID, userID)
	if err != nil {
		return nil, err
	}

	routed := &RoutedRequest{Participant: true, Variant: variant}
	if variant == abtest.VariantTreatment {
		routed.Decision = decision
	} else {
		routed.Decision = controlDecision(decision)
	}
	return routed, nil
}

// RecordOutcome records one execution outcome for an assigned user and
// re-evaluates the monitoring thresholds.
func (d *Deployment) RecordOutcome(userID string, obs abtest.Observation) error {
	if err := d.framework.RecordMetrics(d.experimentID, userID, obs); err != nil {
		return err
	}
	d.checkThresholds()
	return nil
}

// EvaluateRollout reports the current stage and whether its progression
// gates pass.
func (d *Deployment) EvaluateRollout() (*RolloutStatus, error) {
	d.mu.Lock()
	stage := d.stage
	startedAt := d.stageStartedAt
	d.mu.Unlock()

	control, treatment, err := d.framework.SampleSizes(d.experimentID)
	if err != nil {
		return nil, err
	}

	status := &RolloutStatus{
		StageIndex:       stage,
		Stage:            d.cfg.Stages[stage],
		StageStartedAt:   startedAt,
		ElapsedMs:        d.now().Sub(startedAt).Milliseconds(),
		ControlSamples:   control,
		TreatmentSamples: treatment,
	}

	if status.ElapsedMs < status.Stage.DurationMs {
		status.Blockers = append(status.Blockers, fmt.Sprintf("stage duration %dms not yet elapsed", status.Stage.DurationMs))
	}
	if control+treatment < status.Stage.MinimumSamples {
		status.Blockers = append(status.Blockers,
			fmt.Sprintf("samples %d below stage minimum %d", control+treatment, status.Stage.MinimumSamples))
	}

	if analysis, aerr := d.framework.AnalyzeExperiment(d.experimentID); aerr == nil {
		status.Analysis = analysis
		if d.cfg.AutoProgress {
			if analysis.CostChange > -d.cfg.MinCostReduction {
				status.Blockers = append(status.Blockers,
					fmt.Sprintf("cost change %.1f%% misses the %.0f%% reduction gate", analysis.CostChange*100, d.cfg.MinCostReduction*100))
			}
			if analysis.ExecutionTimeChange > d.cfg.MaxExecutionTimeIncrease {
				status.Blockers = append(status.Blockers,
					fmt.Sprintf("execution time change %.1f%% exceeds the %.0f%% gate", analysis.ExecutionTimeChange*100, d.cfg.MaxExecutionTimeIncrease*100))
			}
		}
	} else if d.cfg.AutoProgress {
		status.Blockers = append(status.Blockers, "analysis unavailable: "+aerr.Error())
	}

	status.Ready = len(status.Blockers) == 0
	return status, nil
}

// ProgressRollout advances to the next stage when the current stage's
// gates pass.
func (d *Deployment) ProgressRollout() (*RolloutStatus, error) {
	status, err := d.EvaluateRollout()
	if err != nil {
		return nil, err
	}
	if status.StageIndex >= len(d.cfg.Stages)-1 {
		return status, ErrRolloutComplete
	}
	if !status.Ready {
		return status, fmt.Errorf("%w: %v", ErrStageNotReady, status.Blockers)
	}

	d.mu.Lock()
	d.stage++
	d.stageStartedAt = d.now()
	next := d.cfg.Stages[d.stage]
	d.mu.Unlock()

	log.Infof("Rollout for experiment %s progressed to stage %q (%.0f%%)", d.experimentID, next.Name, next.Percentage)
	return d.EvaluateRollout()
}

// RollbackRollout steps back one stage, shrinking exposure. The first
// stage cannot roll back further.
func (d *Deployment) RollbackRollout() (*RolloutStatus, error) {
	d.mu.Lock()
	if d.stage == 0 {
		d.mu.Unlock()
		return nil, ErrRolloutAtStart
	}
	d.stage--
	d.stageStartedAt = d.now()
	prev := d.cfg.Stages[d.stage]
	d.mu.Unlock()

	log.Warnf("Rollout for experiment %s rolled back to stage %q (%.0f%%)", d.experimentID, prev.Name, prev.Percentage)
	return d.EvaluateRollout()
}

// Stage returns the current stage index and definition.
func (d *Deployment) Stage() (int, config.RolloutStage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage, d.cfg.Stages[d.stage]
}

// checkThresholds evaluates monitoring thresholds against the treatment
// variant once enough observations exist.
func (d *Deployment) checkThresholds() {
	control, treatment, err := d.framework.Summaries(d.experimentID)
	if err != nil {
		return
	}
	if control.Samples+treatment.Samples < d.alertCfg.MinSamples {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if treatment.Samples > 0 {
		errorRate := 1 - treatment.SuccessRate
		if errorRate > d.alertCfg.MaxErrorRate {
			d.emit(Alert{
				Severity: SeverityCritical,
				Type:     AlertErrorRate,
				Message:  fmt.Sprintf("treatment error rate %.1f%% exceeds %.1f%%", errorRate*100, d.alertCfg.MaxErrorRate*100),
				Data:     map[string]any{"error_rate": errorRate, "samples": treatment.Samples},
			})
		}
		if treatment.MeanExecutionTimeMs > d.alertCfg.MaxExecutionTimeMs {
			d.emit(Alert{
				Severity: SeverityWarning,
				Type:     AlertExecutionTime,
				Message:  fmt.Sprintf("treatment mean execution time %.0fms exceeds %.0fms", treatment.MeanExecutionTimeMs, d.alertCfg.MaxExecutionTimeMs),
				Data:     map[string]any{"mean_execution_time_ms": treatment.MeanExecutionTimeMs},
			})
		}
	}

	if control.Samples > 0 && treatment.Samples > 0 && control.MeanCost > 0 {
		increase := (treatment.MeanCost - control.MeanCost) / control.MeanCost
		if increase > d.alertCfg.MaxCostIncrease {
			d.emit(Alert{
				Severity: SeverityWarning,
				Type:     AlertCostIncrease,
				Message:  fmt.Sprintf("treatment cost %.1f%% above control, threshold %.1f%%", increase*100, d.alertCfg.MaxCostIncrease*100),
				Data:     map[string]any{"cost_increase": increase},
			})
		}
	}
}

// controlDecision strips skills from a routing decision for control and
// non-participant users.
func controlDecision(decision *router.Decision) *router.Decision {
	if len(decision.Skills) == 0 {
		return decision
	}
	return fallback.DegradeDecision(decision, decision.SkillIDs())
}

// participates reports whether the user's deterministic rollout bucket
// falls inside the stage percentage. The bucket is independent of variant
// assignment so growing the percentage only adds users.
func participates(experimentID, userID string, percentage float64) bool {
	if percentage >= 100 {
		return true
	}
	if percentage <= 0 {
		return false
	}
	sum := sha256.Sum256([]byte("rollout:" + experimentID + ":" + userID))
	bucket := float64(binary.BigEndian.Uint64(sum[:8])%10000) / 100
	return bucket < percentage
}
