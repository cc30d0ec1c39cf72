// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package abtest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
)

func newTestFramework() *Framework {
	return NewFramework(config.ExperimentConfig{}, metrics.New())
}

func testExperiment(id string) Experiment {
	return Experiment{
		ID:              id,
		Name:            "skill rollout",
		ControlSkills:   nil,
		TreatmentSkills: []string{"contract-review"},
	}
}

func TestCreateExperimentDefaults(t *testing.T) {
	f := newTestFramework()

	exp, err := f.CreateExperiment(Experiment{Name: "unnamed id"})
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if exp.ID == "" {
		t.Fatal("no ID generated")
	}
	if exp.AssignmentStrategy != "hash" {
		t.Errorf("strategy = %s, want hash default", exp.AssignmentStrategy)
	}
	if exp.SignificanceLevel != 0.05 {
		t.Errorf("significance = %f, want 0.05 default", exp.SignificanceLevel)
	}
	if exp.MinimumSampleSize != 100 {
		t.Errorf("minimum sample = %d, want 100 default", exp.MinimumSampleSize)
	}
	if !exp.Active {
		t.Error("new experiment is not active")
	}
}

func TestCreateExperimentDuplicate(t *testing.T) {
	f := newTestFramework()

	if _, err := f.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	_, err := f.CreateExperiment(testExperiment("exp-1"))
	if !errors.Is(err, ErrExperimentExists) {
		t.Fatalf("err = %v, want ErrExperimentExists", err)
	}
}

func TestCreateExperimentRejectsUnknownStrategy(t *testing.T) {
	f := newTestFramework()
	exp := testExperiment("exp-1")
	exp.AssignmentStrategy = "round-robin"
	if _, err := f.CreateExperiment(exp); err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

func TestAssignUserStickyAndDeterministic(t *testing.T) {
	f := newTestFramework()
	if _, err := f.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	first, err := f.AssignUser("exp-1", "user-42")
	if err != nil {
		t.Fatalf("AssignUser: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := f.AssignUser("exp-1", "user-42")
		if err != nil {
			t.Fatalf("AssignUser: %v", err)
		}
		if again != first {
			t.Fatalf("assignment flapped: %s then %s", first, again)
		}
	}

	// Hash assignment survives a restart: a fresh framework with the same
	// experiment ID assigns the same variant.
	f2 := newTestFramework()
	if _, err := f2.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	fresh, err := f2.AssignUser("exp-1", "user-42")
	if err != nil {
		t.Fatalf("AssignUser: %v", err)
	}
	if fresh != first {
		t.Fatalf("hash assignment not deterministic across instances: %s vs %s", first, fresh)
	}
}

func TestAssignUserBalance(t *testing.T) {
	f := newTestFramework()
	if _, err := f.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	counts := map[Variant]int{}
	for i := 0; i < 1000; i++ {
		v, err := f.AssignUser("exp-1", fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("AssignUser: %v", err)
		}
		counts[v]++
	}

	for _, variant := range []Variant{VariantControl, VariantTreatment} {
		if counts[variant] < 350 || counts[variant] > 650 {
			t.Fatalf("assignment imbalance: %v", counts)
		}
	}
}

func TestAssignUserErrors(t *testing.T) {
	f := newTestFramework()

	if _, err := f.AssignUser("missing", "user-1"); !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("err = %v, want ErrExperimentNotFound", err)
	}

	if _, err := f.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if err := f.StopExperiment("exp-1"); err != nil {
		t.Fatalf("StopExperiment: %v", err)
	}
	if _, err := f.AssignUser("exp-1", "user-1"); !errors.Is(err, ErrExperimentInactive) {
		t.Fatalf("err = %v, want ErrExperimentInactive", err)
	}
}

func TestRecordMetricsRequiresAssignment(t *testing.T) {
	f := newTestFramework()
	if _, err := f.CreateExperiment(testExperiment("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	err := f.RecordMetrics("exp-1", "stranger", Observation{Cost: 1})
	if !errors.Is(err, ErrUserNotAssigned) {
		t.Fatalf("err = %v, want ErrUserNotAssigned", err)
	}
}

func TestAnalyzeInsufficientSample(t *testing.T) {
	f := newTestFramework()
	exp := testExperiment("exp-1")
	exp.MinimumSampleSize = 10
	if _, err := f.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if _, err := f.AssignUser("exp-1", "user-1"); err != nil {
		t.Fatalf("AssignUser: %v", err)
	}
	if err := f.RecordMetrics("exp-1", "user-1", Observation{Cost: 1, Success: true}); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	_, err := f.AnalyzeExperiment("exp-1")
	if !errors.Is(err, ErrInsufficientSample) {
		t.Fatalf("err = %v, want ErrInsufficientSample", err)
	}
}

// populate assigns users and records costs that depend on their variant,
// with a little deterministic spread so variances are non-zero.
func populate(t *testing.T, f *Framework, expID string, users int, controlCost, treatmentCost float64) {
	t.Helper()
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("user-%d", i)
		variant, err := f.AssignUser(expID, user)
		if err != nil {
			t.Fatalf("AssignUser: %v", err)
		}
		cost := controlCost
		if variant == VariantTreatment {
			cost = treatmentCost
		}
		cost += float64(i%7) * 0.001
		err = f.RecordMetrics(expID, user, Observation{Cost: cost, ExecutionTimeMs: 1000, Success: true})
		if err != nil {
			t.Fatalf("RecordMetrics: %v", err)
		}
	}
}

func TestAnalyzeRecommendsAdoptingCheaperTreatment(t *testing.T) {
	f := newTestFramework()
	exp := testExperiment("exp-1")
	exp.MinimumSampleSize = 30
	if _, err := f.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	populate(t, f, "exp-1", 400, 1.0, 0.5)

	analysis, err := f.AnalyzeExperiment("exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExperiment: %v", err)
	}
	if !analysis.Significant {
		t.Fatalf("a 50%% cost difference was not significant: p = %f", analysis.PValue)
	}
	if analysis.CostChange > -0.4 {
		t.Fatalf("cost change = %f, want about -0.5", analysis.CostChange)
	}
	if analysis.Recommendation != RecommendAdoptTreatment {
		t.Fatalf("recommendation = %s, want adopt_treatment", analysis.Recommendation)
	}
}

func TestAnalyzeRecommendsKeepingCheaperControl(t *testing.T) {
	f := newTestFramework()
	exp := testExperiment("exp-1")
	exp.MinimumSampleSize = 30
	if _, err := f.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	populate(t, f, "exp-1", 400, 0.5, 1.0)

	analysis, err := f.AnalyzeExperiment("exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExperiment: %v", err)
	}
	if analysis.Recommendation != RecommendKeepControl {
		t.Fatalf("recommendation = %s, want keep_control", analysis.Recommendation)
	}
}

func TestAnalyzeContinuesOnSmallDifference(t *testing.T) {
	f := newTestFramework()
	exp := testExperiment("exp-1")
	exp.MinimumSampleSize = 30
	if _, err := f.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	// A 2% cost difference is inside the adoption margin even if the test
	// reaches significance.
	populate(t, f, "exp-1", 400, 1.0, 0.98)

	analysis, err := f.AnalyzeExperiment("exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExperiment: %v", err)
	}
	if analysis.Recommendation != RecommendContinue {
		t.Fatalf("recommendation = %s, want continue_testing", analysis.Recommendation)
	}
}
