// Package security provides the pre-storage content screen.
//
// Every candidate document passes through three ordered layers before it can
// be stored: a pattern layer (regex shapes for known credentials and obvious
// PII), an entropy layer (structural heuristics plus character entropy for
// credentials the patterns miss), and an optional named-entity layer for PII
// beyond structural secrets. A missing optional layer degrades coverage but
// never fails the pipeline.
//
// Resolution policy: any layer voting block forces block (fail closed on
// detected secrets); PII-only findings default to mask. A block result is a
// reported outcome, not an error.
package security

import "sort"

// Action is the outcome of screening for a finding or a whole document.
type Action string

const (
	// ActionAllow stores the document unchanged.
	ActionAllow Action = "allow"

	// ActionMask stores the document with the finding's span redacted.
	ActionMask Action = "mask"

	// ActionBlock refuses storage of the whole document.
	ActionBlock Action = "block"
)

// FindingKind classifies what a layer detected.
type FindingKind string

const (
	// KindSecret is a credential or other secret material.
	KindSecret FindingKind = "secret"

	// KindPII is personally identifying information.
	KindPII FindingKind = "pii"
)

// Finding is one detected span. Findings are ephemeral: they are produced per
// screening pass and consumed immediately by the ingestion pipeline, never
// persisted.
type Finding struct {
	// Kind is what was detected.
	Kind FindingKind

	// Layer is the name of the layer that produced the finding.
	Layer string

	// Rule names the matching rule within the layer.
	Rule string

	// Start and End are rune offsets of the span in the screened text.
	Start int
	End   int

	// Action is the layer's vote for this finding.
	Action Action
}

// Result is the outcome of one screening pass.
type Result struct {
	// Action is the resolved document-level action.
	Action Action

	// MaskedText is the text with PII spans redacted. Only meaningful when
	// Action is mask; equals the input when Action is allow.
	MaskedText string

	// Findings are all findings from all layers, in span order.
	Findings []Finding
}

// Layer is one screening layer. Layers are stateless and independently
// skippable.
type Layer interface {
	// Name returns the layer name used for overrides and finding provenance.
	Name() string

	// Detect returns all findings in the text. Offsets are rune offsets.
	Detect(text string) []Finding
}

// Screen runs the ordered layer stack and resolves a document-level action.
type Screen struct {
	layers []Layer

	// overrides maps layer name to a forced action for that layer's findings.
	overrides map[string]Action
}

// Option configures a Screen.
type Option func(*Screen)

// WithLayerOverride forces every finding from the named layer to the given
// action. Operators use this to, for example, downgrade a noisy layer from
// block to mask.
func WithLayerOverride(layer string, action Action) Option {
	return func(s *Screen) {
		s.overrides[layer] = action
	}
}

// WithEntityRecognizer enables the named-entity layer with the given
// recognizer. Without this option the layer is skipped entirely.
func WithEntityRecognizer(r EntityRecognizer) Option {
	return func(s *Screen) {
		s.layers = append(s.layers, &nerLayer{recognizer: r})
	}
}

// NewScreen creates a screen with the pattern and entropy layers always
// enabled, plus any optional layers added through options.
func NewScreen(opts ...Option) *Screen {
	s := &Screen{
		layers:    []Layer{newPatternLayer(), newEntropyLayer()},
		overrides: make(map[string]Action),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen runs all layers over the text and resolves the document action.
//
// The returned Result is always valid; screening has no failure mode beyond
// degraded coverage when optional layers are absent.
func (s *Screen) Screen(text string) *Result {
	var findings []Finding
	for _, layer := range s.layers {
		for _, f := range layer.Detect(text) {
			if forced, ok := s.overrides[f.Layer]; ok {
				f.Action = forced
			}
			findings = append(findings, f)
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})

	action := ActionAllow
	for _, f := range findings {
		if f.Action == ActionBlock {
			action = ActionBlock
			break
		}
		if f.Action == ActionMask {
			action = ActionMask
		}
	}

	result := &Result{Action: action, MaskedText: text, Findings: findings}
	if action == ActionMask {
		result.MaskedText = maskSpans(text, findings)
	}
	return result
}

// maskSpans replaces each mask-action span with a redaction marker. Spans are
// rune offsets; replacement runs back to front so earlier offsets stay valid.
func maskSpans(text string, findings []Finding) string {
	runes := []rune(text)
	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		if f.Action != ActionMask {
			continue
		}
		if f.Start < 0 || f.End > len(runes) || f.Start >= f.End {
			continue
		}
		marker := []rune("[REDACTED:" + string(f.Kind) + "]")
		replaced := make([]rune, 0, len(runes)-(f.End-f.Start)+len(marker))
		replaced = append(replaced, runes[:f.Start]...)
		replaced = append(replaced, marker...)
		replaced = append(replaced, runes[f.End:]...)
		runes = replaced
	}
	return string(runes)
}
