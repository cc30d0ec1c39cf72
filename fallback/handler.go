// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fallback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
	"github.com/draftwise/skillrouter/router"
)

// ErrTimeout reports that an execution attempt exceeded the per-attempt
// budget. The attempt's context is canceled so a cooperative operation
// stops its work.
var ErrTimeout = errors.New("execution timed out")

// Diagnostic event types recorded by the handler.
const (
	EventCircuitOpen        = "circuit_open"
	EventTimeout            = "timeout"
	EventSkillError         = "skill_error"
	EventMaxRetriesExceeded = "max_retries_exceeded"
)

// backoffJitter is the ± fraction applied to each backoff delay.
const backoffJitter = 0.2

// degradedConfidence is assigned when every skill is stripped.
const degradedConfidence = 0.3

// partialDegradeFactor scales confidence when only some skills are removed.
const partialDegradeFactor = 0.8

// Operation executes a routing decision and produces a result.
type Operation func(ctx context.Context, decision *router.Decision) (any, error)

// Event is one diagnostic record of a fallback action.
type Event struct {
	Type      string    `json:"type"`
	SkillID   string    `json:"skill_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of an execution under the handler.
type Result struct {
	// Value is the operation's result.
	Value any `json:"value"`

	// Decision is the decision actually executed, which differs from the
	// input when degradation stripped skills.
	Decision *router.Decision `json:"decision"`

	// Degraded reports whether the skills-free or reduced-skill path ran.
	Degraded bool `json:"degraded"`

	// Attempts is the number of execution attempts made.
	Attempts int `json:"attempts"`
}

// Handler executes routing decisions with circuit breaking, per-attempt
// timeouts, retries with jittered exponential backoff, and skill
// degradation when a skill path is exhausted.
type Handler struct {
	breakers *BreakerSet
	cfg      config.FallbackConfig
	m        *metrics.Metrics

	eventMu sync.Mutex
	events  []Event

	// sleep is replaceable in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHandler creates a Handler with its own breaker set. The metrics sink
// may be nil, in which case the shared global is used.
func NewHandler(cfg config.FallbackConfig, m *metrics.Metrics) *Handler {
	full := config.Config{Fallback: cfg}
	full.Sanitize()
	if m == nil {
		m = metrics.Global()
	}
	return &Handler{
		breakers: NewBreakerSet(full.Fallback, m),
		cfg:      full.Fallback,
		m:        m,
		sleep:    sleepContext,
	}
}

// Breakers exposes the handler's breaker set.
func (h *Handler) Breakers() *BreakerSet {
	return h.breakers
}

// ExecuteWithFallback runs the operation for a decision. Skills whose
// breakers reject the call are stripped before execution; a failed skill
// execution retries with backoff and finally degrades to a skills-free
// decision rather than returning the skill error.
func (h *Handler) ExecuteWithFallback(ctx context.Context, decision *router.Decision, op Operation) (*Result, error) {
	current := decision
	degradedPath := false

	blocked := h.blockedSkills(decision)
	if len(blocked) > 0 {
		for _, id := range blocked {
			h.record(Event{Type: EventCircuitOpen, SkillID: id, Reason: "breaker rejected execution"})
		}
		h.m.RecordFallback()
		current = DegradeDecision(decision, blocked)
		degradedPath = true
		log.Infof("Executing degraded decision: %d of %d skills blocked by open breakers", len(blocked), len(decision.Skills))
	}

	value, attempts, err := h.executeWithRetry(ctx, current, op)
	if err == nil {
		for _, id := range current.SkillIDs() {
			h.breakers.RecordSuccess(id)
		}
		return &Result{Value: value, Decision: current, Degraded: degradedPath, Attempts: attempts}, nil
	}

	for _, id := range current.SkillIDs() {
		h.breakers.RecordFailure(id)
	}

	// Skills-free last resort. Without skills to strip there is nothing
	// left to degrade to.
	if len(current.Skills) == 0 {
		return nil, err
	}

	h.m.RecordFallback()
	degraded := DegradeDecision(current, current.SkillIDs())
	log.Warnf("Skill execution exhausted (%v), falling back to skills-free decision", err)

	value, fallbackAttempts, ferr := h.executeWithRetry(ctx, degraded, op)
	if ferr != nil {
		return nil, fmt.Errorf("skills-free fallback failed after skill error (%v): %w", err, ferr)
	}
	return &Result{Value: value, Decision: degraded, Degraded: true, Attempts: attempts + fallbackAttempts}, nil
}

// executeWithRetry attempts the operation up to MaxRetries+1 times with
// jittered exponential backoff, returning the last error on exhaustion.
func (h *Handler) executeWithRetry(ctx context.Context, decision *router.Decision, op Operation) (any, int, error) {
	var lastErr error

	attempts := *h.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			h.m.RecordRetry()
			if err := h.sleep(ctx, h.backoffDelay(attempt)); err != nil {
				return nil, attempt, err
			}
		}

		value, err := h.executeWithTimeout(ctx, decision, op)
		if err == nil {
			return value, attempt + 1, nil
		}
		lastErr = err

		eventType := EventSkillError
		if errors.Is(err, ErrTimeout) {
			eventType = EventTimeout
		}
		h.record(Event{Type: eventType, SkillID: firstSkillID(decision), Reason: err.Error(), Attempt: attempt + 1})
		log.Debugf("Execution attempt %d/%d failed: %v", attempt+1, attempts, err)
	}

	h.record(Event{Type: EventMaxRetriesExceeded, SkillID: firstSkillID(decision), Reason: lastErr.Error(), Attempt: attempts})
	return nil, attempts, lastErr
}

// executeWithTimeout runs one attempt under the per-attempt budget. The
// attempt context carries the deadline so the operation is canceled, not
// merely abandoned, when the budget elapses.
func (h *Handler) executeWithTimeout(ctx context.Context, decision *router.Decision, op Operation) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(h.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := op(attemptCtx, decision)
		done <- outcome{value, err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTimeout
	}
}

// backoffDelay computes the delay before the given attempt (1-based for
// the first retry), with exponential growth, a cap, and ±20% jitter.
func (h *Handler) backoffDelay(attempt int) time.Duration {
	delay := float64(h.cfg.InitialDelayMs) * math.Pow(h.cfg.BackoffMultiplier, float64(attempt-1))
	if delay > float64(h.cfg.MaxDelayMs) {
		delay = float64(h.cfg.MaxDelayMs)
	}
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(delay*jitter) * time.Millisecond
}

// blockedSkills returns the decision's skill IDs whose breakers reject
// execution right now.
func (h *Handler) blockedSkills(decision *router.Decision) []string {
	var blocked []string
	for _, id := range decision.SkillIDs() {
		if !h.breakers.Allow(id) {
			blocked = append(blocked, id)
		}
	}
	return blocked
}

// DegradeDecision strips unhealthy skills from a decision. Removing every
// skill converts it to a low-confidence skills-free fallback; removing
// some keeps the rest with reduced confidence.
func DegradeDecision(decision *router.Decision, unhealthy []string) *router.Decision {
	bad := make(map[string]bool, len(unhealthy))
	for _, id := range unhealthy {
		bad[id] = true
	}

	degraded := *decision
	degraded.Alternatives = nil
	degraded.Skills = nil
	for _, skill := range decision.Skills {
		if !bad[skill.ID] {
			degraded.Skills = append(degraded.Skills, skill)
		}
	}

	if len(degraded.Skills) == 0 {
		degraded.Strategy = router.StrategyFallback
		degraded.Confidence = degradedConfidence
		degraded.Reason = "all skills unhealthy, degraded to skills-free execution"
	} else {
		degraded.Confidence = decision.Confidence * partialDegradeFactor
		degraded.Reason = fmt.Sprintf("degraded: %d unhealthy skill(s) removed", len(decision.Skills)-len(degraded.Skills))
	}
	return &degraded
}

// record appends a diagnostic event, dropping the oldest past the cap.
func (h *Handler) record(event Event) {
	event.Timestamp = time.Now()

	h.eventMu.Lock()
	defer h.eventMu.Unlock()

	h.events = append(h.events, event)
	if len(h.events) > h.cfg.MaxEvents {
		h.events = h.events[len(h.events)-h.cfg.MaxEvents:]
	}
}

// Events returns the most recent n events, newest last. n <= 0 returns all
// retained events.
func (h *Handler) Events(n int) []Event {
	h.eventMu.Lock()
	defer h.eventMu.Unlock()

	if n <= 0 || n > len(h.events) {
		n = len(h.events)
	}
	out := make([]Event, n)
	copy(out, h.events[len(h.events)-n:])
	return out
}

func firstSkillID(decision *router.Decision) string {
	if len(decision.Skills) == 0 {
		return ""
	}
	return decision.Skills[0].ID
}

// sleepContext waits for the duration or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
