// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selector

import "testing"

func TestClassifyComplexity(t *testing.T) {
	tests := []struct {
		name string
		task string
		want Complexity
	}{
		{"high keyword", "analyze the merger agreement for compliance gaps", ComplexityHigh},
		{"low keyword", "send a quick thank you note", ComplexityLow},
		{"no keyword", "draft a letter to opposing counsel", ComplexityMedium},
		{"high wins over low", "quick analysis of the acquisition", ComplexityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&Request{Task: tt.task})
			if c.Complexity != tt.want {
				t.Errorf("Classify(%q).Complexity = %s, want %s", tt.task, c.Complexity, tt.want)
			}
		})
	}
}

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		task string
		want string
	}{
		{"review the NDA before signing", "contracts"},
		{"reply to the client email", "email"},
		{"summarize the deposition transcript", "summarization"},
		{"evaluate the opposing brief", "analysis"},
		{"compose a memo for the partners", "drafting"},
		{"extract the key dates into a table", "extraction"},
		{"do something unspecified", "general"},
	}
	for _, tt := range tests {
		c := Classify(&Request{Task: tt.task})
		if c.Category != tt.want {
			t.Errorf("Classify(%q).Category = %s, want %s", tt.task, c.Category, tt.want)
		}
	}
}

func TestClassifyMultipleSkills(t *testing.T) {
	tests := []struct {
		name string
		task string
		want bool
	}{
		{"conjunction", "summarize the filing and draft a response", true},
		{"semicolon", "summarize the filing; flag open items", true},
		{"single concern", "summarize the filing", false},
		{
			"many significant words",
			"carefully examine every deposition transcript exhibit appendix schedule declaration affidavit statement certificate attachment",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&Request{Task: tt.task})
			if c.RequiresMultipleSkills != tt.want {
				t.Errorf("RequiresMultipleSkills = %v, want %v", c.RequiresMultipleSkills, tt.want)
			}
		})
	}
}

func TestClassifyContextOverridesComplexity(t *testing.T) {
	req := &Request{
		Task:    "send a quick note",
		Context: &RequestContext{Complexity: ComplexityHigh},
	}
	c := Classify(req)
	if c.Complexity != ComplexityHigh {
		t.Fatalf("context complexity override ignored, got %s", c.Complexity)
	}
}
