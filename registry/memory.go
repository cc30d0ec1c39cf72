// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryRegistry is an in-process SkillsRegistry and MetricsSource backed by
// mutex-guarded maps. Relevance is keyword-overlap scoring; execution
// outcomes update running per-skill averages.
type MemoryRegistry struct {
	mu      sync.RWMutex
	skills  map[string]SkillMetadata
	ordered []string
	metrics map[string]*SkillMetrics

	// usageCount tracks how many times each skill has been recommended.
	usageCount map[string]int64
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		skills:     make(map[string]SkillMetadata),
		metrics:    make(map[string]*SkillMetrics),
		usageCount: make(map[string]int64),
	}
}

// Register adds or replaces a skill definition.
func (r *MemoryRegistry) Register(skill SkillMetadata) error {
	if skill.ID == "" {
		return fmt.Errorf("skill ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[skill.ID]; !exists {
		r.ordered = append(r.ordered, skill.ID)
	}
	r.skills[skill.ID] = skill
	return nil
}

// GetSkill retrieves a skill by ID.
func (r *MemoryRegistry) GetSkill(id string) (SkillMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[id]
	if !ok {
		return SkillMetadata{}, fmt.Errorf("skill not found: %s", id)
	}
	return skill, nil
}

// SkillCount returns the number of registered skills.
func (r *MemoryRegistry) SkillCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// RecommendSkills scores every registered skill against the query text by
// keyword overlap and returns up to maxSkills candidates ordered by
// descending relevance. Skills scoring zero are omitted.
func (r *MemoryRegistry) RecommendSkills(ctx context.Context, query TaskQuery, maxSkills int) ([]Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxSkills <= 0 {
		maxSkills = 3
	}

	words := tokenize(query.Text)

	r.mu.RLock()
	candidates := make([]Recommendation, 0, len(r.skills))
	for _, id := range r.ordered {
		skill := r.skills[id]
		score, matched := r.score(skill, words, query.Category)
		if score <= 0 {
			continue
		}
		reason := "keyword match"
		if len(matched) > 0 {
			reason = fmt.Sprintf("matched keywords: %s", strings.Join(matched, ", "))
		}
		candidates = append(candidates, Recommendation{
			Skill:          skill,
			RelevanceScore: score,
			Reason:         reason,
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})
	if len(candidates) > maxSkills {
		candidates = candidates[:maxSkills]
	}

	r.mu.Lock()
	for _, c := range candidates {
		r.usageCount[c.Skill.ID]++
	}
	r.mu.Unlock()

	return candidates, nil
}

// score computes keyword-overlap relevance for one skill.
// Each matched keyword contributes; a category match adds a fixed boost.
// The result is clamped to [0, 1].
func (r *MemoryRegistry) score(skill SkillMetadata, words map[string]bool, category string) (float64, []string) {
	if len(skill.Keywords) == 0 {
		return 0, nil
	}

	var matched []string
	for _, kw := range skill.Keywords {
		if words[strings.ToLower(kw)] {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	score := float64(len(matched)) / float64(len(skill.Keywords))
	// Matching most keywords is a strong signal even for keyword-rich skills.
	if len(matched) >= 3 {
		score += 0.2
	}
	if category != "" && strings.EqualFold(category, skill.Category) {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}
	return score, matched
}

// RecordOutcome folds one execution outcome into the skill's running
// averages. tokensSavedFraction and executionTimeMs describe the single
// execution being recorded.
func (r *MemoryRegistry) RecordOutcome(skillID string, success bool, tokensSavedFraction float64, executionTimeMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.metrics[skillID]
	if !ok {
		m = &SkillMetrics{SkillID: skillID}
		r.metrics[skillID] = m
	}

	n := float64(m.Samples)
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	m.SuccessRate = (m.SuccessRate*n + successVal) / (n + 1)
	m.AverageTokensSaved = (m.AverageTokensSaved*n + tokensSavedFraction) / (n + 1)
	m.AverageExecutionTimeMs = (m.AverageExecutionTimeMs*n + executionTimeMs) / (n + 1)
	m.Samples++
}

// GetSkillMetrics returns statistics for one skill, or nil when the skill
// has no recorded executions.
func (r *MemoryRegistry) GetSkillMetrics(skillID string) *SkillMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[skillID]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}

// GetAllMetrics returns statistics for every tracked skill.
func (r *MemoryRegistry) GetAllMetrics() []SkillMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]SkillMetrics, 0, len(r.metrics))
	for _, m := range r.metrics {
		result = append(result, *m)
	}
	return result
}

// GetUsageStats returns how many times each skill has been recommended.
func (r *MemoryRegistry) GetUsageStats() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]int64, len(r.usageCount))
	for k, v := range r.usageCount {
		result[k] = v
	}
	return result
}

// tokenize lowercases text and splits it into a word set.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		words[w] = true
	}
	return words
}
