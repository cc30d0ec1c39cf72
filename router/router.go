// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
	"github.com/draftwise/skillrouter/perf"
	"github.com/draftwise/skillrouter/registry"
	"github.com/draftwise/skillrouter/selector"
)

// Adaptive threshold bounds. Self-tuning never moves a threshold outside
// its band regardless of observed effectiveness.
const (
	highThresholdMin   = 0.70
	highThresholdMax   = 0.95
	mediumThresholdMin = 0.40
	mediumThresholdMax = 0.70

	// tuneMargin is how far observed mean effectiveness must diverge from a
	// threshold before tuning moves it.
	tuneMargin = 0.1

	// minDecisionConfidence is the selection confidence below which the
	// cost-benefit check overrides a skill decision with the fallback.
	minDecisionConfidence = 0.5

	// fallbackConfidence is assigned to skills-free fallback decisions.
	fallbackConfidence = 0.5

	// premiumConfidence is assigned to critical premium routes.
	premiumConfidence = 0.95

	maxAlternatives = 3
)

// Router makes cost-benefit routing decisions.
type Router struct {
	selector      *selector.Selector
	optimizer     *perf.Optimizer
	metricsSource registry.MetricsSource
	estimator     *Estimator
	m             *metrics.Metrics
	cfg           config.RouterConfig

	// thresholds are self-tuned and therefore guarded separately from the
	// immutable config value.
	mu              sync.Mutex
	highThreshold   float64
	mediumThreshold float64
}

// New creates a Router. metricsSource may be nil, which disables adaptive
// threshold tuning; the metrics sink may be nil, in which case the shared
// global is used.
func New(sel *selector.Selector, optimizer *perf.Optimizer, metricsSource registry.MetricsSource, cfg config.RouterConfig, m *metrics.Metrics) *Router {
	full := config.Config{Router: cfg}
	full.Sanitize()
	cfg = full.Router
	if m == nil {
		m = metrics.Global()
	}
	return &Router{
		selector:        sel,
		optimizer:       optimizer,
		metricsSource:   metricsSource,
		estimator:       NewEstimator(cfg.TokenEstimator),
		m:               m,
		cfg:             cfg,
		highThreshold:   cfg.HighEffectivenessThreshold,
		mediumThreshold: cfg.MediumEffectivenessThreshold,
	}
}

// Thresholds returns the current adaptive effectiveness thresholds.
func (r *Router) Thresholds() (high, medium float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highThreshold, r.mediumThreshold
}

// Route produces a routing decision for the request. It never returns an
// error for normal inputs: an empty or low-value skill selection yields a
// skills-free fallback decision rather than a failure.
func (r *Router) Route(ctx context.Context, req *selector.Request) *Decision {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if elapsed.Milliseconds() > r.cfg.RouteBudgetMs {
			log.Warnf("Routing took %v, over the %dms budget", elapsed, r.cfg.RouteBudgetMs)
		}
	}()

	classification := selector.Classify(req)

	// Critical work skips cost optimization entirely.
	if r.isCritical(req, classification) {
		decision := r.premiumDecision(req)
		decision.Alternatives = r.alternatives(ctx, req, classification, decision)
		r.m.RecordRouted(string(decision.Strategy))
		return decision
	}

	sel := r.measuredSelect(ctx, req)
	effectiveness := r.measuredEffectiveness(ctx, sel)

	r.tuneThresholds()
	high, medium := r.Thresholds()

	fallback := r.fallbackDecision(req, classification)

	var decision *Decision
	switch {
	case len(sel.Skills) > 0 && effectiveness >= high:
		decision = r.skillDecision(req, sel, r.cfg.Cheap, StrategySkillEnhanced,
			fmt.Sprintf("effectiveness %.2f meets high threshold %.2f", effectiveness, high))
	case len(sel.Skills) > 0 && effectiveness >= medium:
		decision = r.skillDecision(req, sel, r.cfg.Standard, StrategyHybrid,
			fmt.Sprintf("effectiveness %.2f meets medium threshold %.2f", effectiveness, medium))
	default:
		decision = fallback
	}

	// Cost-benefit check: a skill decision must beat the fallback cost by
	// the target margin, with a confident selection behind it.
	if decision.Strategy != StrategyFallback {
		savings := savingsPercent(fallback.EstimatedCost, decision.EstimatedCost)
		if savings < r.cfg.TargetSavingsPercentage || sel.Confidence < minDecisionConfidence {
			log.Debugf("Overriding %s decision: savings %.1f%% (target %.1f%%), selection confidence %.2f",
				decision.Strategy, savings, r.cfg.TargetSavingsPercentage, sel.Confidence)
			fallback.Reason = fmt.Sprintf("cost-benefit override of %s: savings %.1f%%, confidence %.2f",
				decision.Strategy, savings, sel.Confidence)
			decision = fallback
		}
	}

	decision.Alternatives = r.alternatives(ctx, req, classification, decision)
	r.m.RecordRouted(string(decision.Strategy))
	return decision
}

// measuredSelect runs skill selection under timing instrumentation.
func (r *Router) measuredSelect(ctx context.Context, req *selector.Request) *selector.Selection {
	if r.optimizer == nil {
		return r.selector.Select(ctx, req)
	}
	v, _ := r.optimizer.Measure(ctx, "skill_selection", "", func(ctx context.Context) (any, error) {
		return r.selector.Select(ctx, req), nil
	})
	return v.(*selector.Selection)
}

// measuredEffectiveness runs effectiveness scoring under timing
// instrumentation.
func (r *Router) measuredEffectiveness(ctx context.Context, sel *selector.Selection) float64 {
	if len(sel.Skills) == 0 {
		return 0
	}
	if r.optimizer == nil {
		return r.selector.Effectiveness(ctx, sel.SkillIDs())
	}
	v, _ := r.optimizer.Measure(ctx, "effectiveness", "", func(ctx context.Context) (any, error) {
		return r.selector.Effectiveness(ctx, sel.SkillIDs()), nil
	})
	return v.(float64)
}

// isCritical reports whether the request must route to the premium tier.
func (r *Router) isCritical(req *selector.Request, classification selector.Classification) bool {
	if strings.Contains(strings.ToLower(req.Task), "critical") {
		return true
	}
	return req.Context != nil && req.Context.Critical && classification.Complexity == selector.ComplexityHigh
}

// skillDecision builds a decision applying the selection's skills on a tier.
func (r *Router) skillDecision(req *selector.Request, sel *selector.Selection, tier config.ModelTier, strategy Strategy, reason string) *Decision {
	tokens := r.estimator.EstimateTokens(req.Task, true)
	return &Decision{
		Model:           tier.ID,
		Skills:          sel.Skills,
		Strategy:        strategy,
		Confidence:      sel.Confidence,
		EstimatedTokens: tokens,
		EstimatedCost:   r.estimator.EstimateCost(tokens, tier),
		Reason:          reason,
		Timestamp:       time.Now(),
	}
}

// fallbackDecision builds the skills-free decision whose tier follows task
// complexity alone.
func (r *Router) fallbackDecision(req *selector.Request, classification selector.Classification) *Decision {
	var tier config.ModelTier
	switch classification.Complexity {
	case selector.ComplexityLow:
		tier = r.cfg.Cheap
	case selector.ComplexityHigh:
		tier = r.cfg.Premium
	default:
		tier = r.cfg.Standard
	}

	tokens := r.estimator.EstimateTokens(req.Task, false)
	return &Decision{
		Model:           tier.ID,
		Skills:          nil,
		Strategy:        StrategyFallback,
		Confidence:      fallbackConfidence,
		EstimatedTokens: tokens,
		EstimatedCost:   r.estimator.EstimateCost(tokens, tier),
		Reason:          fmt.Sprintf("skills-free route for %s complexity", classification.Complexity),
		Timestamp:       time.Now(),
	}
}

// premiumDecision builds the skills-free premium decision for critical work.
func (r *Router) premiumDecision(req *selector.Request) *Decision {
	tokens := r.estimator.EstimateTokens(req.Task, false)
	return &Decision{
		Model:           r.cfg.Premium.ID,
		Skills:          nil,
		Strategy:        StrategyPremium,
		Confidence:      premiumConfidence,
		EstimatedTokens: tokens,
		EstimatedCost:   r.estimator.EstimateCost(tokens, r.cfg.Premium),
		Reason:          "critical request routed to premium tier",
		Timestamp:       time.Now(),
	}
}

// tuneThresholds nudges the effectiveness thresholds toward the observed
// mean skill effectiveness, bounded to their bands. No-op without a
// metrics source or recorded skills.
func (r *Router) tuneThresholds() {
	if r.metricsSource == nil {
		return
	}
	all := r.metricsSource.GetAllMetrics()
	if len(all) == 0 {
		return
	}

	var sum float64
	for i := range all {
		sum += selector.MetricsScore(&all[i])
	}
	mean := sum / float64(len(all))

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case mean > r.highThreshold+tuneMargin:
		r.highThreshold = minFloat(r.highThreshold+r.cfg.ThresholdStep, highThresholdMax)
	case mean < r.highThreshold-tuneMargin:
		r.highThreshold = maxFloat(r.highThreshold-r.cfg.ThresholdStep, highThresholdMin)
	}

	switch {
	case mean > r.mediumThreshold+tuneMargin:
		r.mediumThreshold = minFloat(r.mediumThreshold+r.cfg.ThresholdStep, mediumThresholdMax)
	case mean < r.mediumThreshold-tuneMargin:
		r.mediumThreshold = maxFloat(r.mediumThreshold-r.cfg.ThresholdStep, mediumThresholdMin)
	}
}

// alternatives generates up to three alternative decisions in parallel.
// Partial failure of one generator does not abort the others.
func (r *Router) alternatives(ctx context.Context, req *selector.Request, classification selector.Classification, chosen *Decision) []Decision {
	slots := make([]*Decision, 3)
	g, _ := errgroup.WithContext(ctx)

	if chosen.Strategy != StrategyFallback {
		g.Go(func() error {
			slots[0] = r.fallbackDecision(req, classification)
			return nil
		})
	}
	if chosen.Strategy != StrategyPremium {
		g.Go(func() error {
			slots[1] = r.premiumDecision(req)
			return nil
		})
	}
	if len(chosen.Skills) > 1 {
		g.Go(func() error {
			single := *chosen
			single.Skills = chosen.Skills[:1]
			single.Alternatives = nil
			single.Reason = "single-skill variant"
			slots[2] = &single
			return nil
		})
	}
	_ = g.Wait()

	alternatives := make([]Decision, 0, maxAlternatives)
	for _, alt := range slots {
		if alt == nil {
			continue
		}
		alt.Alternatives = nil
		alternatives = append(alternatives, *alt)
		if len(alternatives) == maxAlternatives {
			break
		}
	}
	return alternatives
}

// savingsPercent returns the projected savings of cost relative to
// baseline, as a percentage of baseline.
func savingsPercent(baseline, cost float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (baseline - cost) / baseline * 100
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
