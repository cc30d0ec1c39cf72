// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fallback keeps skill execution degrading gracefully. Per-skill
// circuit breakers isolate failing skills, and the handler wraps execution
// with timeouts, retries with jittered backoff, and skills-free degradation
// when everything else is exhausted.
package fallback

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/draftwise/skillrouter/config"
	"github.com/draftwise/skillrouter/metrics"
)

// BreakerState is the lifecycle state of one skill's circuit breaker.
type BreakerState string

// Breaker states.
const (
	// StateClosed admits all executions.
	StateClosed BreakerState = "closed"

	// StateOpen rejects executions until the reset timeout elapses.
	StateOpen BreakerState = "open"

	// StateHalfOpen admits a bounded number of trial executions.
	StateHalfOpen BreakerState = "half_open"
)

// breaker tracks one skill. Guarded by the owning set's mutex.
type breaker struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenAttempts    int
}

// BreakerSet manages a circuit breaker per skill ID. Breakers are created
// closed on first use.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      config.FallbackConfig
	m        *metrics.Metrics

	now func() time.Time
}

// NewBreakerSet creates a BreakerSet. The metrics sink may be nil, in which
// case the shared global is used.
func NewBreakerSet(cfg config.FallbackConfig, m *metrics.Metrics) *BreakerSet {
	full := config.Config{Fallback: cfg}
	full.Sanitize()
	if m == nil {
		m = metrics.Global()
	}
	return &BreakerSet{
		breakers: make(map[string]*breaker),
		cfg:      full.Fallback,
		m:        m,
		now:      time.Now,
	}
}

// Allow reports whether an execution may proceed for the skill. An open
// breaker whose reset timeout has elapsed transitions to half-open and
// admits up to the configured number of trial executions.
func (s *BreakerSet) Allow(skillID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(skillID)
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if s.now().Sub(b.openedAt).Milliseconds() >= s.cfg.ResetTimeoutMs {
			log.Debugf("Breaker for %s entering half-open after reset timeout", skillID)
			b.state = StateHalfOpen
			b.halfOpenAttempts = 1
			return true
		}
		return false
	default: // half-open
		if b.halfOpenAttempts < s.cfg.HalfOpenMaxAttempts {
			b.halfOpenAttempts++
			return true
		}
		return false
	}
}

// RecordSuccess closes the skill's breaker and clears its failure count.
func (s *BreakerSet) RecordSuccess(skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(skillID)
	if b.state != StateClosed {
		log.Infof("Breaker for %s closing after successful execution", skillID)
	}
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.halfOpenAttempts = 0
}

// RecordFailure counts a failed execution. The breaker opens when
// consecutive failures reach the threshold, and a half-open failure
// reopens it immediately.
func (s *BreakerSet) RecordFailure(skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(skillID)
	b.consecutiveFailures++

	switch b.state {
	case StateHalfOpen:
		s.open(skillID, b)
	case StateClosed:
		if b.consecutiveFailures >= s.cfg.FailureThreshold {
			s.open(skillID, b)
		}
	}
}

// open transitions a breaker to open. Caller holds the mutex.
func (s *BreakerSet) open(skillID string, b *breaker) {
	log.Warnf("Breaker for %s opening after %d consecutive failures", skillID, b.consecutiveFailures)
	b.state = StateOpen
	b.openedAt = s.now()
	b.halfOpenAttempts = 0
	s.m.RecordBreakerOpen()
}

// State returns the skill's breaker state without creating a breaker.
// Unknown skills report closed.
func (s *BreakerSet) State(skillID string) BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[skillID]; ok {
		return b.state
	}
	return StateClosed
}

// States returns a copy of every tracked breaker's state.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]BreakerState, len(s.breakers))
	for id, b := range s.breakers {
		states[id] = b.state
	}
	return states
}

// Reset closes and clears the skill's breaker.
func (s *BreakerSet) Reset(skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, skillID)
}

// ResetAll closes and clears every breaker.
func (s *BreakerSet) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = make(map[string]*breaker)
}

// get returns the skill's breaker, creating it closed. Caller holds the
// mutex.
func (s *BreakerSet) get(skillID string) *breaker {
	b, ok := s.breakers[skillID]
	if !ok {
		b = &breaker{state: StateClosed}
		s.breakers[skillID] = b
	}
	return b
}
