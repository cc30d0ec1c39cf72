// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router decides which model tier and skill set serve a request at
// the lowest cost that still clears the effectiveness bar. It consumes the
// selector's skill selection, estimates cost per tier, and self-tunes its
// effectiveness thresholds from observed skill metrics.
package router

import (
	"time"

	"github.com/draftwise/skillrouter/registry"
)

// Strategy describes the shape of a routing decision.
type Strategy string

// Routing strategies.
const (
	// StrategySkillEnhanced routes to the cheapest tier with skills.
	StrategySkillEnhanced Strategy = "skill-enhanced"

	// StrategyHybrid routes to the mid tier with skills.
	StrategyHybrid Strategy = "hybrid"

	// StrategyFallback routes skills-free on a tier chosen from task
	// complexity alone.
	StrategyFallback Strategy = "fallback"

	// StrategyPremium routes critical work directly to the premium tier.
	StrategyPremium Strategy = "premium"
)

// Decision is the routing outcome for one request. It is read-only for
// downstream consumers.
type Decision struct {
	// Model is the selected model identifier.
	Model string `json:"model"`

	// Skills are the capabilities to apply, empty for skills-free routes.
	Skills []registry.SkillMetadata `json:"skills"`

	// Strategy records the decision shape.
	Strategy Strategy `json:"strategy"`

	// Confidence is the decision confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// EstimatedTokens is the projected total token usage.
	EstimatedTokens int `json:"estimated_tokens"`

	// EstimatedCost is the projected cost in USD.
	EstimatedCost float64 `json:"estimated_cost"`

	// Alternatives are other viable decisions, without nested alternatives.
	Alternatives []Decision `json:"alternatives,omitempty"`

	// Reason explains the decision for diagnostics.
	Reason string `json:"reason,omitempty"`

	// Timestamp is when the decision was produced.
	Timestamp time.Time `json:"timestamp"`
}

// SkillIDs returns the IDs of the decision's skills in order.
func (d *Decision) SkillIDs() []string {
	ids := make([]string, len(d.Skills))
	for i, skill := range d.Skills {
		ids[i] = skill.ID
	}
	return ids
}
