// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/draftwise/skillrouter/abtest"
	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
	"github.com/draftwise/skillrouter/registry"
	"github.com/draftwise/skillrouter/router"
	"github.com/draftwise/skillrouter/selector"
)

// stubSource serves one high-effectiveness skill so the router produces
// skill-enhanced decisions.
type stubSource struct{}

func (stubSource) RecommendSkills(ctx context.Context, query registry.TaskQuery, maxSkills int) ([]registry.Recommendation, error) {
	return []registry.Recommendation{{
		Skill:          registry.SkillMetadata{ID: "contract-review", Name: "contract-review", Type: "analysis"},
		RelevanceScore: 0.9,
	}}, nil
}

func (stubSource) GetSkillMetrics(id string) *registry.SkillMetrics {
	return &registry.SkillMetrics{SkillID: id, SuccessRate: 1, AverageTokensSaved: 0.7, Samples: 50}
}

func (stubSource) GetAllMetrics() []registry.SkillMetrics {
	return []registry.SkillMetrics{{SkillID: "contract-review", SuccessRate: 1, AverageTokensSaved: 0.7, Samples: 50}}
}

func newTestRouter() *router.Router {
	src := stubSource{}
	sel := selector.New(src, src, nil, config.SelectorConfig{})
	return router.New(sel, nil, src, config.RouterConfig{}, metrics.New())
}

func newTestDeployment(t *testing.T, rollout config.RolloutConfig, alerts config.AlertConfig) (*Deployment, *abtest.Framework) {
	t.Helper()
	f := abtest.NewFramework(config.ExperimentConfig{}, metrics.New())
	exp := abtest.Experiment{
		ID:                "exp-1",
		Name:              "contract skill rollout",
		TreatmentSkills:   []string{"contract-review"},
		MinimumSampleSize: 10,
	}
	if _, err := f.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	d, err := New(newTestRouter(), f, "exp-1", rollout, alerts, metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, f
}

func stages(percentages ...float64) config.RolloutConfig {
	cfg := config.RolloutConfig{}
	for i, p := range percentages {
		cfg.Stages = append(cfg.Stages, config.RolloutStage{
			Name:       fmt.Sprintf("stage-%d", i),
			Percentage: p,
		})
	}
	return cfg
}

func TestNewRequiresExistingExperiment(t *testing.T) {
	f := abtest.NewFramework(config.ExperimentConfig{}, metrics.New())
	_, err := New(newTestRouter(), f, "missing", config.RolloutConfig{}, config.AlertConfig{}, metrics.New())
	if !errors.Is(err, abtest.ErrExperimentNotFound) {
		t.Fatalf("err = %v, want ErrExperimentNotFound", err)
	}
}

func TestDefaultLadderStartsAtCanary(t *testing.T) {
	d, _ := newTestDeployment(t, config.RolloutConfig{}, config.AlertConfig{})

	idx, stage := d.Stage()
	if idx != 0 {
		t.Fatalf("stage index = %d, want 0", idx)
	}
	if stage.Name != "canary" || stage.Percentage != 5 {
		t.Fatalf("first stage = %s/%.0f%%, want canary/5%%", stage.Name, stage.Percentage)
	}
}

func TestRouteNonParticipantGetsControlWithoutAssignment(t *testing.T) {
	d, f := newTestDeployment(t, stages(0, 100), config.AlertConfig{})

	routed, err := d.RouteWithExperiment(context.Background(), "user-1", &selector.Request{Task: "review the agreement"})
	if err != nil {
		t.Fatalf("RouteWithExperiment: %v", err)
	}
	if routed.Participant {
		t.Fatal("user participated at a 0% stage")
	}
	if len(routed.Decision.Skills) != 0 {
		t.Fatalf("non-participant decision kept skills %v", routed.Decision.SkillIDs())
	}
	if _, err := f.Assignment("exp-1", "user-1"); !errors.Is(err, abtest.ErrUserNotAssigned) {
		t.Fatalf("non-participant was assigned a variant: %v", err)
	}
}

func TestRouteParticipantsSplitByVariant(t *testing.T) {
	d, f := newTestDeployment(t, stages(100), config.AlertConfig{})

	var sawControl, sawTreatment bool
	for i := 0; i < 50 && !(sawControl && sawTreatment); i++ {
		user := fmt.Sprintf("user-%d", i)
		routed, err := d.RouteWithExperiment(context.Background(), user, &selector.Request{Task: "review the agreement"})
		if err != nil {
			t.Fatalf("RouteWithExperiment: %v", err)
		}
		if !routed.Participant {
			t.Fatalf("user %s not participating at 100%%", user)
		}

		variant, err := f.Assignment("exp-1", user)
		if err != nil {
			t.Fatalf("Assignment: %v", err)
		}
		if variant != routed.Variant {
			t.Fatalf("routed variant %s disagrees with assignment %s", routed.Variant, variant)
		}

		switch variant {
		case abtest.VariantTreatment:
			sawTreatment = true
			if len(routed.Decision.Skills) == 0 {
				t.Fatal("treatment user received a skills-free decision")
			}
		case abtest.VariantControl:
			sawControl = true
			if len(routed.Decision.Skills) != 0 {
				t.Fatalf("control user received skills %v", routed.Decision.SkillIDs())
			}
		}
	}
	if !sawControl || !sawTreatment {
		t.Fatal("50 users never covered both variants")
	}
}

func TestRouteParticipationIsSticky(t *testing.T) {
	d, _ := newTestDeployment(t, stages(50), config.AlertConfig{})

	first := make(map[string]bool)
	for i := 0; i < 100; i++ {
		user := fmt.Sprintf("user-%d", i)
		routed, err := d.RouteWithExperiment(context.Background(), user, &selector.Request{Task: "review the agreement"})
		if err != nil {
			t.Fatalf("RouteWithExperiment: %v", err)
		}
		first[user] = routed.Participant
	}
	for user, participant := range first {
		routed, err := d.RouteWithExperiment(context.Background(), user, &selector.Request{Task: "review the agreement"})
		if err != nil {
			t.Fatalf("RouteWithExperiment: %v", err)
		}
		if routed.Participant != participant {
			t.Fatalf("participation for %s flapped", user)
		}
	}
}

func TestRecordOutcomeRequiresAssignment(t *testing.T) {
	d, _ := newTestDeployment(t, stages(100), config.AlertConfig{})

	err := d.RecordOutcome("stranger", abtest.Observation{Cost: 1})
	if !errors.Is(err, abtest.ErrUserNotAssigned) {
		t.Fatalf("err = %v, want ErrUserNotAssigned", err)
	}
}

func TestErrorRateAlert(t *testing.T) {
	d, f := newTestDeployment(t, stages(100), config.AlertConfig{MinSamples: 3, MaxErrorRate: 0.10})

	// Find a treatment user; failures on the treatment arm must alert.
	var treatmentUser string
	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("user-%d", i)
		variant, err := f.AssignUser("exp-1", user)
		if err != nil {
			t.Fatalf("AssignUser: %v", err)
		}
		if variant == abtest.VariantTreatment {
			treatmentUser = user
			break
		}
	}
	if treatmentUser == "" {
		t.Fatal("no treatment user among 50")
	}

	for i := 0; i < 3; i++ {
		if err := d.RecordOutcome(treatmentUser, abtest.Observation{Cost: 1, Success: false}); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	alerts := d.Alerts(0)
	if len(alerts) == 0 {
		t.Fatal("no alert for a 100% treatment error rate")
	}
	last := alerts[len(alerts)-1]
	if last.Type != AlertErrorRate || last.Severity != SeverityCritical {
		t.Fatalf("alert = %s/%s, want error_rate/critical", last.Type, last.Severity)
	}
	if last.ID == "" {
		t.Fatal("alert has no ID")
	}
}

func TestEvaluateRolloutBlockers(t *testing.T) {
	cfg := stages(5, 25)
	cfg.Stages[0].DurationMs = 3600000
	cfg.Stages[0].MinimumSamples = 100
	d, _ := newTestDeployment(t, cfg, config.AlertConfig{})

	status, err := d.EvaluateRollout()
	if err != nil {
		t.Fatalf("EvaluateRollout: %v", err)
	}
	if status.Ready {
		t.Fatal("fresh stage reported ready despite duration and sample gates")
	}
	if len(status.Blockers) != 2 {
		t.Fatalf("blockers = %v, want duration and sample gates", status.Blockers)
	}
}

func TestProgressRollout(t *testing.T) {
	d, _ := newTestDeployment(t, stages(5, 25), config.AlertConfig{})

	status, err := d.ProgressRollout()
	if err != nil {
		t.Fatalf("ProgressRollout: %v", err)
	}
	if status.StageIndex != 1 {
		t.Fatalf("stage = %d after progression, want 1", status.StageIndex)
	}

	// The ladder ends here.
	if _, err := d.ProgressRollout(); !errors.Is(err, ErrRolloutComplete) {
		t.Fatalf("err = %v, want ErrRolloutComplete", err)
	}
}

func TestProgressRolloutBlockedStage(t *testing.T) {
	cfg := stages(5, 25)
	cfg.Stages[0].MinimumSamples = 100
	d, _ := newTestDeployment(t, cfg, config.AlertConfig{})

	if _, err := d.ProgressRollout(); !errors.Is(err, ErrStageNotReady) {
		t.Fatalf("err = %v, want ErrStageNotReady", err)
	}
}

func TestRollbackRollout(t *testing.T) {
	d, _ := newTestDeployment(t, stages(5, 25), config.AlertConfig{})

	if _, err := d.RollbackRollout(); !errors.Is(err, ErrRolloutAtStart) {
		t.Fatalf("err = %v, want ErrRolloutAtStart", err)
	}

	if _, err := d.ProgressRollout(); err != nil {
		t.Fatalf("ProgressRollout: %v", err)
	}
	status, err := d.RollbackRollout()
	if err != nil {
		t.Fatalf("RollbackRollout: %v", err)
	}
	if status.StageIndex != 0 {
		t.Fatalf("stage = %d after rollback, want 0", status.StageIndex)
	}
}

func TestAutoProgressRequiresAnalysis(t *testing.T) {
	cfg := stages(5, 25)
	cfg.AutoProgress = true
	d, _ := newTestDeployment(t, cfg, config.AlertConfig{})

	status, err := d.EvaluateRollout()
	if err != nil {
		t.Fatalf("EvaluateRollout: %v", err)
	}
	if status.Ready {
		t.Fatal("auto-progress stage ready without an analyzable experiment")
	}
}
