// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/perf"
	"github.com/draftwise/skillrouter/registry"
)

// Confidence blend weights for combined selections.
const (
	topSkillWeight    = 0.6
	secondSkillWeight = 0.4
	combinationBonus  = 0.15

	// secondSkillMinRelevance is the relevance floor for the second skill
	// of a combined selection.
	secondSkillMinRelevance = 0.6

	// patternBoostFactor multiplies relevance when a pattern-boost rule
	// matches the task phrasing.
	patternBoostFactor = 1.2
)

// patternBoosts maps task phrasing to skill-name substrings. A match
// multiplies the relevance of every candidate whose name contains the
// substring.
var patternBoosts = []struct {
	re       *regexp.Regexp
	namePart string
}{
	{regexp.MustCompile(`(?i)draft.{0,40}\b(email|reply|response)\b`), "email"},
	{regexp.MustCompile(`(?i)\b(review|analy[sz]e)\b.{0,40}\b(contract|agreement)\b`), "contract"},
	{regexp.MustCompile(`(?i)\bsummar(y|ize|ise)\b`), "summar"},
	{regexp.MustCompile(`(?i)\bextract\b.{0,40}\b(clause|term|date|field)`), "extract"},
	{regexp.MustCompile(`(?i)\b(compare|redline|diff)\b`), "compare"},
	{regexp.MustCompile(`(?i)\btranslat(e|ion)\b`), "translat"},
}

// Selector matches tasks to skills with confidence scoring.
type Selector struct {
	registry  registry.SkillsRegistry
	metrics   registry.MetricsSource
	optimizer *perf.Optimizer
	cfg       config.SelectorConfig
}

// New creates a Selector. The metrics source may be nil, in which case
// every skill scores the default effectiveness.
func New(reg registry.SkillsRegistry, metricsSource registry.MetricsSource, optimizer *perf.Optimizer, cfg config.SelectorConfig) *Selector {
	full := config.Config{Selector: cfg}
	full.Sanitize()
	return &Selector{
		registry:  reg,
		metrics:   metricsSource,
		optimizer: optimizer,
		cfg:       full.Selector,
	}
}

// Config returns the selector's active configuration.
func (s *Selector) Config() config.SelectorConfig {
	return s.cfg
}

// Select chooses skills for a request. It never returns an error for normal
// inputs: when no candidate clears the confidence bar the selection carries
// StrategyNone with the candidates listed as alternatives. A registry
// failure also degrades to StrategyNone.
func (s *Selector) Select(ctx context.Context, req *Request) *Selection {
	classification := Classify(req)

	candidates := s.rankedCandidates(ctx, req, classification)
	selection := s.decide(candidates, classification)
	s.adjustForContext(req, classification, selection)

	if req.Constraints != nil && req.Constraints.MinConfidence > 0 &&
		selection.Confidence < req.Constraints.MinConfidence &&
		selection.Strategy != StrategyNone {
		log.Debugf("Selection confidence %.2f below caller minimum %.2f, degrading to none",
			selection.Confidence, req.Constraints.MinConfidence)
		selection.Alternatives = append(recommendationsOf(selection.Skills), selection.Alternatives...)
		selection.Skills = nil
		selection.Strategy = StrategyNone
		selection.Reason = "below caller minimum confidence"
	}

	return selection
}

// rankedCandidates returns pattern-boosted, relevance-ordered candidates,
// served from the pattern cache when the same task was seen recently.
func (s *Selector) rankedCandidates(ctx context.Context, req *Request, classification Classification) []registry.Recommendation {
	key := perf.TaskKey(req.Task)

	if s.optimizer != nil {
		if cached, ok := s.optimizer.Patterns.Get(key); ok {
			if recs, ok := cached.([]registry.Recommendation); ok {
				return recs
			}
		}
	}

	query := registry.TaskQuery{
		Text:       req.Task,
		Category:   classification.Category,
		Complexity: string(classification.Complexity),
	}
	recs, err := s.registry.RecommendSkills(ctx, query, s.cfg.MaxSkillsPerRequest)
	if err != nil {
		log.Warnf("Skill recommendation failed: %v", err)
		return nil
	}

	recs = applyPatternBoost(req.Task, recs)

	if s.optimizer != nil {
		s.optimizer.Patterns.Set(key, recs)
	}
	return recs
}

// applyPatternBoost multiplies the relevance of candidates whose skill name
// matches a boost rule for this task phrasing, then re-sorts descending.
func applyPatternBoost(task string, recs []registry.Recommendation) []registry.Recommendation {
	boosted := make([]registry.Recommendation, len(recs))
	copy(boosted, recs)

	for _, rule := range patternBoosts {
		if !rule.re.MatchString(task) {
			continue
		}
		for i := range boosted {
			name := strings.ToLower(boosted[i].Skill.Name)
			if strings.Contains(name, rule.namePart) {
				boosted[i].RelevanceScore = clamp(boosted[i].RelevanceScore * patternBoostFactor)
				boosted[i].Reason = boosted[i].Reason + "; pattern boost"
			}
		}
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].RelevanceScore > boosted[j].RelevanceScore
	})
	return boosted
}

// decide picks the selection strategy from the ranked candidates.
func (s *Selector) decide(candidates []registry.Recommendation, classification Classification) *Selection {
	if len(candidates) == 0 {
		return &Selection{Strategy: StrategyNone, Reason: "no candidates"}
	}

	top := candidates[0]

	// Combine the top two when the task warrants it and the second skill
	// pulls its weight.
	if classification.Complexity != ComplexityLow && len(candidates) >= 2 {
		second := candidates[1]
		complementary := classification.RequiresMultipleSkills || top.Skill.Type != second.Skill.Type
		if second.RelevanceScore >= secondSkillMinRelevance && complementary {
			confidence := clamp(topSkillWeight*top.RelevanceScore + secondSkillWeight*second.RelevanceScore + combinationBonus)
			return &Selection{
				Skills:       []registry.SkillMetadata{top.Skill, second.Skill},
				Confidence:   confidence,
				Strategy:     StrategyCombined,
				Alternatives: candidates[2:],
				Reason:       fmt.Sprintf("combined %s + %s", top.Skill.ID, second.Skill.ID),
			}
		}
	}

	switch {
	case top.RelevanceScore >= s.cfg.HighConfidenceThreshold:
		return &Selection{
			Skills:       []registry.SkillMetadata{top.Skill},
			Confidence:   clamp(top.RelevanceScore),
			Strategy:     StrategySingle,
			Alternatives: candidates[1:],
			Reason:       fmt.Sprintf("high-confidence match %s", top.Skill.ID),
		}
	case top.RelevanceScore >= s.cfg.MinConfidenceThreshold:
		return &Selection{
			Skills:       []registry.SkillMetadata{top.Skill},
			Confidence:   clamp(top.RelevanceScore),
			Strategy:     StrategyFallback,
			Alternatives: candidates[1:],
			Reason:       fmt.Sprintf("fallback match %s", top.Skill.ID),
		}
	default:
		return &Selection{
			Strategy:     StrategyNone,
			Alternatives: candidates,
			Reason:       "best candidate below minimum confidence",
		}
	}
}

// adjustForContext applies caller-context adjustments to the selection
// confidence and re-clamps it to [0, 1].
func (s *Selector) adjustForContext(req *Request, classification Classification, selection *Selection) {
	if req.Context == nil || len(selection.Skills) == 0 {
		return
	}

	confidence := selection.Confidence

	if containsAny(selection.SkillIDs(), req.Context.PreviousSkills) {
		confidence *= 1.10
	}
	if classification.Complexity == ComplexityHigh && len(selection.Skills) == 1 {
		confidence *= 0.90
	}
	for _, skill := range selection.Skills {
		if containsFold(req.Context.PreferredCategories, skill.Category) {
			confidence *= 1.05
			break
		}
	}

	selection.Confidence = clamp(confidence)
}

func recommendationsOf(skills []registry.SkillMetadata) []registry.Recommendation {
	recs := make([]registry.Recommendation, len(skills))
	for i, skill := range skills {
		recs[i] = registry.Recommendation{Skill: skill, Reason: "previously selected"}
	}
	return recs
}

func containsAny(haystack, needles []string) bool {
	for _, n := range needles {
		for _, h := range haystack {
			if h == n {
				return true
			}
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
