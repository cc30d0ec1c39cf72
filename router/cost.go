// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"

	"github.com/draftwise/skillrouter/config"
)

// Token and cost model constants.
const (
	// completionExpansion scales prompt tokens to projected total tokens
	// (prompt plus completion and system overhead).
	completionExpansion = 3

	// skillTokenReduction is the fraction of tokens skills save.
	skillTokenReduction = 0.70

	// inputShare and outputShare split total tokens for pricing.
	inputShare  = 0.6
	outputShare = 0.4
)

// Estimator projects token usage and cost for a task on a model tier.
// The "tiktoken" method counts prompt tokens with a real codec; "simple"
// approximates one token per four characters.
type Estimator struct {
	method string
	codec  tokenizer.Codec
}

// NewEstimator creates an Estimator for the configured method. When the
// tiktoken codec cannot be initialized the estimator falls back to the
// simple approximation.
func NewEstimator(method string) *Estimator {
	e := &Estimator{method: method}
	if method == "tiktoken" {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("tiktoken codec unavailable, using simple estimation: %v", err)
			e.method = "simple"
		} else {
			e.codec = codec
		}
	} else {
		e.method = "simple"
	}
	return e
}

// Method returns the active estimation method.
func (e *Estimator) Method() string {
	return e.method
}

// EstimateTokens projects the total token usage for a task. withSkills
// applies the skill token reduction.
func (e *Estimator) EstimateTokens(task string, withSkills bool) int {
	prompt := e.promptTokens(task)
	total := float64(prompt * completionExpansion)
	if withSkills {
		total *= 1 - skillTokenReduction
	}
	if total < 1 {
		total = 1
	}
	return int(total)
}

// EstimateCost prices the projected tokens on a tier, splitting them
// 60/40 between input and output rates.
func (e *Estimator) EstimateCost(tokens int, tier config.ModelTier) float64 {
	inputTokens := float64(tokens) * inputShare
	outputTokens := float64(tokens) * outputShare
	return inputTokens/1e6*tier.InputCostPerMTok + outputTokens/1e6*tier.OutputCostPerMTok
}

// promptTokens counts or approximates the tokens in the task text.
func (e *Estimator) promptTokens(task string) int {
	if e.codec != nil {
		ids, _, err := e.codec.Encode(task)
		if err == nil {
			return len(ids)
		}
		log.Debugf("Token encoding failed, using simple estimation: %v", err)
	}
	n := len(task) / 4
	if n < 1 {
		n = 1
	}
	return n
}
