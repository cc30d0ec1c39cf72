// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selector

import (
	"regexp"
	"strings"
)

// Keyword lists for complexity classification. A single hit from either
// list decides the complexity; high wins over low when both match.
var (
	highComplexityKeywords = []string{
		"analyze", "analysis", "comprehensive", "detailed", "complex",
		"merger", "acquisition", "negotiate", "restructure", "compliance",
		"litigation", "due diligence", "multi-party", "cross-reference",
	}

	lowComplexityKeywords = []string{
		"simple", "quick", "short", "brief", "basic", "reminder",
		"acknowledge", "confirm", "thank",
	}

	// conjunctions signal a task spanning more than one concern.
	conjunctions = []string{" and ", " then ", " also ", " plus ", " as well as ", "; "}
)

// categoryPatterns maps task phrasing to a skill category. First match wins.
var categoryPatterns = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)\b(contract|agreement|clause|nda|terms)\b`), "contracts"},
	{regexp.MustCompile(`(?i)\b(email|reply|respond|inbox|message)\b`), "email"},
	{regexp.MustCompile(`(?i)\b(summar(y|ize|ise)|digest|tldr)\b`), "summarization"},
	{regexp.MustCompile(`(?i)\b(review|analy[sz]e|assess|evaluate)\b`), "analysis"},
	{regexp.MustCompile(`(?i)\b(draft|write|compose|letter|memo)\b`), "drafting"},
	{regexp.MustCompile(`(?i)\b(extract|pull|table|fields?)\b`), "extraction"},
}

// significantWordLen filters filler words when counting task breadth.
const significantWordLen = 4

// multiSkillKeywordCount is the significant-keyword count above which a
// task is assumed to need multiple skills.
const multiSkillKeywordCount = 10

// Classify analyzes a task description with keyword heuristics.
// Caller-supplied complexity in the request context takes precedence.
func Classify(req *Request) Classification {
	task := strings.ToLower(req.Task)

	c := Classification{
		Category:   classifyCategory(task),
		Complexity: classifyComplexity(task),
	}

	if req.Context != nil && req.Context.Complexity != "" {
		c.Complexity = req.Context.Complexity
	}

	c.RequiresMultipleSkills = hasConjunction(task) || countSignificantWords(task) > multiSkillKeywordCount

	return c
}

func classifyCategory(task string) string {
	for _, p := range categoryPatterns {
		if p.re.MatchString(task) {
			return p.category
		}
	}
	return "general"
}

func classifyComplexity(task string) Complexity {
	for _, kw := range highComplexityKeywords {
		if strings.Contains(task, kw) {
			return ComplexityHigh
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(task, kw) {
			return ComplexityLow
		}
	}
	return ComplexityMedium
}

func hasConjunction(task string) bool {
	for _, c := range conjunctions {
		if strings.Contains(task, c) {
			return true
		}
	}
	return false
}

func countSignificantWords(task string) int {
	count := 0
	for _, w := range strings.Fields(task) {
		if len(w) >= significantWordLen {
			count++
		}
	}
	return count
}
