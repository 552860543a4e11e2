package intelligence

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// Classification is the type assignment for a piece of content.
type Classification struct {
	// Type is the assigned memory type.
	Type string

	// Confidence is the router's confidence in the assignment (0.0-1.0).
	// Rule matches report 0.9, LLM answers 0.7, the fallback 0.3.
	Confidence float64

	// Source records what produced the assignment: "hint", "rule", a
	// provider name, or "fallback".
	Source string
}

// classifierRule is one cue in the rule layer.
type classifierRule struct {
	memoryType string
	re         *regexp.Regexp
}

// ClassifierRouter assigns a memory type to ambiguous content.
//
// The router is rule-based first: cheap regex cues cover the common shapes.
// Content no rule recognizes goes to an ordered chain of capability-equivalent
// LLM providers tried in sequence under one shared timeout budget; the chain
// is a flat list, not nested branching, so adding a provider is a config
// change. If every provider fails the router falls back to a default type —
// classification is never fatal to ingestion.
//
// Example usage:
//
//	router := NewClassifierRouter(types, chain, 5*time.Second)
//	c := router.Classify(ctx, content, "")
type ClassifierRouter struct {
	validTypes   map[string]bool
	typeList     []string
	rules        []classifierRule
	chain        []llm.Provider
	budget       time.Duration
	fallbackType string
}

// NewClassifierRouter creates a classifier router.
//
// Parameters:
//   - validTypes: The closed set of assignable memory types
//   - chain: LLM providers tried in order for ambiguous content (may be empty)
//   - budget: Shared wall-clock budget for the whole fallback chain
//
// The fallback type is "discussion" when present in validTypes, else the
// first valid type.
func NewClassifierRouter(validTypes []string, chain []llm.Provider, budget time.Duration) *ClassifierRouter {
	valid := make(map[string]bool, len(validTypes))
	for _, t := range validTypes {
		valid[t] = true
	}

	fallback := "discussion"
	if !valid[fallback] && len(validTypes) > 0 {
		fallback = validTypes[0]
	}

	if budget <= 0 {
		budget = 10 * time.Second
	}

	return &ClassifierRouter{
		validTypes:   valid,
		typeList:     append([]string(nil), validTypes...),
		rules:        defaultRules(),
		chain:        chain,
		budget:       budget,
		fallbackType: fallback,
	}
}

func defaultRules() []classifierRule {
	return []classifierRule{
		{"code_blob", regexp.MustCompile(`(?m)^\s*(func |class |def |package |import |public |private )`)},
		{"error_fix", regexp.MustCompile(`(?i)\bpanic:|\b(stack trace|traceback|exception|fixe?d?\s+(the\s+)?(bug|error|crash))\b`)},
		{"session_summary", regexp.MustCompile(`(?i)^\s*(session summary|handoff)\b`)},
		{"decision", regexp.MustCompile(`(?i)\bdecision:|\b((we\s+)?decided|chose|agreed)\b`)},
		{"convention", regexp.MustCompile(`(?i)^\s*(always|never|prefer|avoid|use|do not|don't)\b`)},
		{"implementation_pattern", regexp.MustCompile(`(?i)\bpattern\b.*\b(implement|use|apply)\b|\b(implement|use|apply)\w*\b.*\bpattern\b`)},
	}
}

// Classify assigns a type to content.
//
// A valid hint short-circuits the router. Rules run next; content no rule
// matches goes through the LLM chain, and the fallback type covers every
// remaining case. Classify never returns an error: a failed classification is
// a degraded result, not a failed ingestion.
func (r *ClassifierRouter) Classify(ctx context.Context, content, hint string) Classification {
	if r.validTypes[hint] {
		return Classification{Type: hint, Confidence: 1.0, Source: "hint"}
	}

	for _, rule := range r.rules {
		if r.validTypes[rule.memoryType] && rule.re.MatchString(content) {
			return Classification{Type: rule.memoryType, Confidence: 0.9, Source: "rule"}
		}
	}

	if c, ok := r.classifyWithChain(ctx, content); ok {
		return c
	}

	return Classification{Type: r.fallbackType, Confidence: 0.3, Source: "fallback"}
}

// classifyWithChain tries each provider in order under the shared budget.
func (r *ClassifierRouter) classifyWithChain(ctx context.Context, content string) (Classification, bool) {
	if len(r.chain) == 0 {
		return Classification{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	prompt := r.buildPrompt(content)
	for _, provider := range r.chain {
		if ctx.Err() != nil {
			break
		}
		answer, err := provider.Generate(ctx, prompt, llm.WithTemperature(0), llm.WithMaxTokens(16))
		if err != nil {
			continue
		}
		if t, ok := r.parseAnswer(answer); ok {
			return Classification{Type: t, Confidence: 0.7, Source: provider.Name()}, true
		}
	}
	return Classification{}, false
}

func (r *ClassifierRouter) buildPrompt(content string) string {
	const maxSample = 2000
	sample := content
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}

	return fmt.Sprintf(`Classify the following content into exactly one of these categories: %s.
Respond with only the category name.

Content:
%s`, strings.Join(r.typeList, ", "), sample)
}

func (r *ClassifierRouter) parseAnswer(answer string) (string, bool) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	answer = strings.Trim(answer, `"'.`)
	if r.validTypes[answer] {
		return answer, true
	}
	// Tolerate answers wrapped in a sentence.
	for _, t := range r.typeList {
		if strings.Contains(answer, t) {
			return t, true
		}
	}
	return "", false
}
