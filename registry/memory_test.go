// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"math"
	"testing"
)

func seededRegistry(t *testing.T) *MemoryRegistry {
	t.Helper()
	r := NewMemoryRegistry()
	skills := []SkillMetadata{
		{
			ID: "contract-review", Name: "Contract Review", Type: "analysis",
			Category: "contracts", Keywords: []string{"contract", "review", "clause", "agreement"},
		},
		{
			ID: "email-drafter", Name: "Email Drafter", Type: "generation",
			Category: "email", Keywords: []string{"email", "draft", "reply"},
		},
		{
			ID: "summarizer", Name: "Document Summarizer", Type: "generation",
			Category: "summarization", Keywords: []string{"summarize", "summary", "brief"},
		},
	}
	for _, s := range skills {
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.ID, err)
		}
	}
	return r
}

func TestRegisterRequiresID(t *testing.T) {
	r := NewMemoryRegistry()
	if err := r.Register(SkillMetadata{Name: "nameless"}); err == nil {
		t.Fatal("Register accepted a skill without an ID")
	}
}

func TestRecommendSkillsRanksByOverlap(t *testing.T) {
	r := seededRegistry(t)

	recs, err := r.RecommendSkills(context.Background(), TaskQuery{
		Text:     "review this contract and flag every risky clause",
		Category: "contracts",
	}, 3)
	if err != nil {
		t.Fatalf("RecommendSkills: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no recommendations for a contract task")
	}
	if recs[0].Skill.ID != "contract-review" {
		t.Fatalf("top recommendation = %s, want contract-review", recs[0].Skill.ID)
	}
	// 3 of 4 keywords matched plus the multi-match and category boosts.
	if recs[0].RelevanceScore < 0.8 {
		t.Fatalf("top relevance = %.2f, want >= 0.8", recs[0].RelevanceScore)
	}
}

func TestRecommendSkillsOmitsZeroScores(t *testing.T) {
	r := seededRegistry(t)

	recs, err := r.RecommendSkills(context.Background(), TaskQuery{Text: "translate this patent filing"}, 3)
	if err != nil {
		t.Fatalf("RecommendSkills: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d recommendations for an unrelated task, want 0", len(recs))
	}
}

func TestRecommendSkillsHonorsLimit(t *testing.T) {
	r := seededRegistry(t)

	recs, err := r.RecommendSkills(context.Background(), TaskQuery{
		Text: "draft a reply email with a summary of the contract review",
	}, 2)
	if err != nil {
		t.Fatalf("RecommendSkills: %v", err)
	}
	if len(recs) > 2 {
		t.Fatalf("got %d recommendations, limit was 2", len(recs))
	}
}

func TestRecordOutcomeRunningAverages(t *testing.T) {
	r := NewMemoryRegistry()

	r.RecordOutcome("skill-a", true, 0.6, 1000)
	r.RecordOutcome("skill-a", false, 0.4, 3000)

	m := r.GetSkillMetrics("skill-a")
	if m == nil {
		t.Fatal("no metrics after recording outcomes")
	}
	if m.Samples != 2 {
		t.Fatalf("samples = %d, want 2", m.Samples)
	}
	if math.Abs(m.SuccessRate-0.5) > 1e-9 {
		t.Errorf("success rate = %f, want 0.5", m.SuccessRate)
	}
	if math.Abs(m.AverageTokensSaved-0.5) > 1e-9 {
		t.Errorf("avg tokens saved = %f, want 0.5", m.AverageTokensSaved)
	}
	if math.Abs(m.AverageExecutionTimeMs-2000) > 1e-9 {
		t.Errorf("avg execution time = %f, want 2000", m.AverageExecutionTimeMs)
	}
}

func TestGetSkillMetricsUnknownSkill(t *testing.T) {
	r := NewMemoryRegistry()
	if m := r.GetSkillMetrics("never-executed"); m != nil {
		t.Fatalf("metrics for unknown skill = %+v, want nil", m)
	}
}

func TestGetSkillMetricsReturnsCopy(t *testing.T) {
	r := NewMemoryRegistry()
	r.RecordOutcome("skill-a", true, 0.5, 100)

	m := r.GetSkillMetrics("skill-a")
	m.SuccessRate = 0

	if fresh := r.GetSkillMetrics("skill-a"); fresh.SuccessRate != 1 {
		t.Fatal("mutating a returned metrics value affected the registry")
	}
}

func TestUsageStats(t *testing.T) {
	r := seededRegistry(t)

	_, err := r.RecommendSkills(context.Background(), TaskQuery{Text: "summarize this brief"}, 3)
	if err != nil {
		t.Fatalf("RecommendSkills: %v", err)
	}

	usage := r.GetUsageStats()
	if usage["summarizer"] != 1 {
		t.Fatalf("summarizer usage = %d, want 1", usage["summarizer"])
	}
}
