// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry defines the collaborator contracts the routing core
// consumes: a skill registry that recommends capabilities for a task, and a
// metrics source that reports per-skill execution statistics. An in-memory
// implementation of both ships in this package for embedders and tests.
package registry

import (
	"context"
)

// SkillMetadata describes a reusable capability owned by the registry.
type SkillMetadata struct {
	// ID is the unique identifier for the skill.
	ID string `json:"id"`

	// Name is the human-readable name of the skill.
	Name string `json:"name"`

	// Type groups skills by mechanism (e.g. "template", "extraction",
	// "analysis"). Combining two skills of different types is preferred.
	Type string `json:"type"`

	// Category groups skills by domain (e.g. "contracts", "email").
	Category string `json:"category"`

	// Description explains what the skill does.
	Description string `json:"description"`

	// Keywords drive relevance scoring in the in-memory registry.
	Keywords []string `json:"keywords,omitempty"`
}

// Recommendation is one ranked skill candidate for a task.
type Recommendation struct {
	// Skill is the recommended capability.
	Skill SkillMetadata `json:"skill"`

	// RelevanceScore is the registry's confidence in the match (0.0-1.0).
	RelevanceScore float64 `json:"relevance_score"`

	// Reason explains why the skill was recommended.
	Reason string `json:"reason"`
}

// SkillMetrics holds execution statistics for a single skill.
type SkillMetrics struct {
	// SkillID identifies the skill the statistics belong to.
	SkillID string `json:"skill_id"`

	// SuccessRate is the fraction of successful executions (0.0-1.0).
	SuccessRate float64 `json:"success_rate"`

	// AverageTokensSaved is the mean fraction of tokens saved per request
	// relative to a skill-free execution (0.0-1.0).
	AverageTokensSaved float64 `json:"average_tokens_saved"`

	// AverageExecutionTimeMs is the mean execution time in milliseconds.
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`

	// Samples is the number of recorded executions.
	Samples int64 `json:"samples"`
}

// TaskQuery describes a task for skill recommendation.
type TaskQuery struct {
	// Text is the raw task description.
	Text string `json:"text"`

	// Category is the classified task category, when known.
	Category string `json:"category,omitempty"`

	// Complexity is the classified complexity ("low", "medium", "high").
	Complexity string `json:"complexity,omitempty"`
}

// SkillsRegistry recommends skills for a task. Implementations are owned
// outside the routing core; MemoryRegistry is provided for convenience.
type SkillsRegistry interface {
	// RecommendSkills returns up to maxSkills candidates ordered by
	// descending relevance.
	RecommendSkills(ctx context.Context, query TaskQuery, maxSkills int) ([]Recommendation, error)
}

// MetricsSource reports per-skill execution statistics.
type MetricsSource interface {
	// GetSkillMetrics returns statistics for one skill, or nil when the
	// skill has no recorded executions.
	GetSkillMetrics(skillID string) *SkillMetrics

	// GetAllMetrics returns statistics for every tracked skill.
	GetAllMetrics() []SkillMetrics
}
