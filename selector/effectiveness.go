// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/draftwise/skillrouter/perf"
	"github.com/draftwise/skillrouter/registry"
)

// Effectiveness scoring weights and reference points.
const (
	successRateWeight = 0.5
	tokenSavedWeight  = 0.3
	speedWeight       = 0.2

	// tokenSavedReference is the savings fraction that earns full token
	// credit; savings beyond it do not score higher.
	tokenSavedReference = 0.7

	// speedReferenceMs is the execution time at which speed credit reaches
	// zero.
	speedReferenceMs = 5000

	// defaultEffectiveness is assumed for skills with no recorded metrics.
	defaultEffectiveness = 0.6
)

// MetricsScore converts one skill's execution statistics into an
// effectiveness score in [0, 1]. A nil metrics entry scores the default.
func MetricsScore(m *registry.SkillMetrics) float64 {
	if m == nil {
		return defaultEffectiveness
	}

	tokenScore := m.AverageTokensSaved / tokenSavedReference
	if tokenScore > 1 {
		tokenScore = 1
	}

	speedScore := 1 - m.AverageExecutionTimeMs/speedReferenceMs
	if speedScore < 0 {
		speedScore = 0
	}

	return clamp(successRateWeight*m.SuccessRate + tokenSavedWeight*tokenScore + speedWeight*speedScore)
}

// Effectiveness returns the mean effectiveness score of a skill set,
// cached by the sorted skill-ID set. Per-skill metric lookups execute
// concurrently. An empty set scores zero.
func (s *Selector) Effectiveness(ctx context.Context, skillIDs []string) float64 {
	if len(skillIDs) == 0 {
		return 0
	}

	key := perf.SkillSetKey(skillIDs)
	if s.optimizer != nil {
		if score, ok := s.optimizer.Effectiveness.Get(key); ok {
			return score
		}
	}

	scores := make([]float64, len(skillIDs))
	g, _ := errgroup.WithContext(ctx)
	for i, id := range skillIDs {
		i, id := i, id
		g.Go(func() error {
			var m *registry.SkillMetrics
			if s.metrics != nil {
				m = s.metrics.GetSkillMetrics(id)
			}
			scores[i] = MetricsScore(m)
			return nil
		})
	}
	_ = g.Wait()

	var sum float64
	for _, score := range scores {
		sum += score
	}
	mean := sum / float64(len(scores))

	if s.optimizer != nil {
		s.optimizer.Effectiveness.Set(key, mean)
	}
	return mean
}
