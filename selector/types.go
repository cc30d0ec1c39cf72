// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package selector matches tasks to registry skills. It classifies the task
// with keyword heuristics, delegates candidate ranking to the registry,
// applies a pattern-boost pass, and produces a confidence-scored selection.
package selector

import (
	"github.com/draftwise/skillrouter/registry"
)

// Complexity is the classified difficulty of a task.
type Complexity string

// Task complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Strategy describes how skills were chosen for a request.
type Strategy string

// Selection strategies.
const (
	// StrategySingle selects the one top-scoring skill.
	StrategySingle Strategy = "single"

	// StrategyCombined pairs the top two complementary skills.
	StrategyCombined Strategy = "combined"

	// StrategyFallback selects a mid-confidence skill with reservations.
	StrategyFallback Strategy = "fallback"

	// StrategyNone reports that no skill cleared the confidence bar.
	StrategyNone Strategy = "none"
)

// RequestContext carries caller-supplied hints about a request.
type RequestContext struct {
	// Complexity overrides the classified complexity when set.
	Complexity Complexity `json:"complexity,omitempty"`

	// Critical marks the request as business-critical.
	Critical bool `json:"critical,omitempty"`

	// PreviousSkills lists skill IDs that served this caller well before.
	PreviousSkills []string `json:"previous_skills,omitempty"`

	// PreferredCategories lists skill categories the caller favors.
	PreferredCategories []string `json:"preferred_categories,omitempty"`
}

// Constraints bounds what the caller will accept.
type Constraints struct {
	// MinConfidence rejects selections scoring below it (0 disables).
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// Request is a task to route. Values are immutable once created.
type Request struct {
	// Task is the raw task description.
	Task string `json:"task"`

	// Context holds optional caller hints.
	Context *RequestContext `json:"context,omitempty"`

	// Constraints holds optional caller bounds.
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Classification is the keyword-heuristic analysis of a task.
type Classification struct {
	// Category is the task domain (e.g. "contracts", "email").
	Category string `json:"category"`

	// Complexity is the estimated difficulty.
	Complexity Complexity `json:"complexity"`

	// RequiresMultipleSkills reports whether the task spans concerns.
	RequiresMultipleSkills bool `json:"requires_multiple_skills"`
}

// Selection is the chosen skill set for one request.
type Selection struct {
	// Skills are the selected capabilities, best first. Empty when the
	// strategy is StrategyNone.
	Skills []registry.SkillMetadata `json:"skills"`

	// Confidence is the selection confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Strategy records how the selection was made.
	Strategy Strategy `json:"strategy"`

	// Alternatives lists candidates that were considered but not selected.
	Alternatives []registry.Recommendation `json:"alternatives,omitempty"`

	// Reason explains the selection for diagnostics.
	Reason string `json:"reason,omitempty"`
}

// SkillIDs returns the IDs of the selected skills in order.
func (s *Selection) SkillIDs() []string {
	ids := make([]string, len(s.Skills))
	for i, skill := range s.Skills {
		ids[i] = skill.ID
	}
	return ids
}
