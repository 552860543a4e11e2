package security

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// patternRule is one regex shape in the pattern layer.
type patternRule struct {
	name   string
	kind   FindingKind
	action Action
	re     *regexp.Regexp
}

// patternLayer is the first, cheapest layer: known credential shapes and
// obvious PII shapes. It runs unconditionally.
type patternLayer struct {
	rules []patternRule
}

func newPatternLayer() *patternLayer {
	return &patternLayer{rules: []patternRule{
		// Credential shapes vote block.
		{"aws_access_key", KindSecret, ActionBlock, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{"stripe_like_key", KindSecret, ActionBlock, regexp.MustCompile(`\bsk-(?:live|test)?-?[A-Za-z0-9]{16,}\b`)},
		{"github_token", KindSecret, ActionBlock, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
		{"slack_token", KindSecret, ActionBlock, regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
		{"private_key_block", KindSecret, ActionBlock, regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
		{"bearer_token", KindSecret, ActionBlock, regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{24,}=*`)},
		{"password_assignment", KindSecret, ActionBlock, regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_-]?key)\s*[:=]\s*['"][^'"]{8,}['"]`)},
		{"connection_string", KindSecret, ActionBlock, regexp.MustCompile(`(?i)\b(?:postgres|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@]+:[^\s@]+@`)},

		// PII shapes vote mask: the document survives with spans redacted.
		{"email", KindPII, ActionMask, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{"phone", KindPII, ActionMask, regexp.MustCompile(`(?:\+?\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)},
		{"ssn", KindPII, ActionMask, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	}}
}

func (l *patternLayer) Name() string { return "pattern" }

func (l *patternLayer) Detect(text string) []Finding {
	var findings []Finding
	for _, rule := range l.rules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Kind:   rule.kind,
				Layer:  l.Name(),
				Rule:   rule.name,
				Start:  runeOffset(text, loc[0]),
				End:    runeOffset(text, loc[1]),
				Action: rule.action,
			})
		}
	}
	return findings
}

// entropyLayer combines character entropy with structural heuristics to catch
// credentials the pattern layer misses: long, high-entropy tokens that mix
// character classes and carry no natural-language structure.
type entropyLayer struct {
	minLength  int
	minEntropy float64
}

func newEntropyLayer() *entropyLayer {
	return &entropyLayer{minLength: 24, minEntropy: 4.2}
}

func (l *entropyLayer) Name() string { return "entropy" }

func (l *entropyLayer) Detect(text string) []Finding {
	var findings []Finding
	offset := 0
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\'' || r == ',' || r == ';'
	}) {
		idx := indexFrom(text, field, offset)
		if idx < 0 {
			continue
		}
		offset = idx + len(field)

		if l.looksLikeSecret(field) {
			findings = append(findings, Finding{
				Kind:   KindSecret,
				Layer:  l.Name(),
				Rule:   "high_entropy_token",
				Start:  runeOffset(text, idx),
				End:    runeOffset(text, idx+len(field)),
				Action: ActionBlock,
			})
		}
	}
	return findings
}

// looksLikeSecret applies the structural heuristics before paying for the
// entropy computation.
func (l *entropyLayer) looksLikeSecret(token string) bool {
	if utf8.RuneCountInString(token) < l.minLength {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range token {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSpace(r):
			return false
		}
	}
	classes := 0
	for _, has := range []bool{hasUpper, hasLower, hasDigit} {
		if has {
			classes++
		}
	}
	if classes < 3 {
		return false
	}

	// URLs and paths mix classes but are not secrets.
	if strings.Contains(token, "://") || strings.Count(token, "/") > 2 {
		return false
	}

	return shannonEntropy(token) >= l.minEntropy
}

func shannonEntropy(s string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}

	var entropy float64
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Entity is a named entity detected by an external recognizer.
type Entity struct {
	// Label is the entity class: "person", "organization", or "location".
	Label string

	// Start and End are rune offsets of the entity span.
	Start int
	End   int
}

// EntityRecognizer detects person/organization/location names. The engine
// treats it as an optional external dependency: when no recognizer is
// configured the named-entity layer is skipped and PII coverage degrades to
// the structural layers.
type EntityRecognizer interface {
	Recognize(text string) []Entity
}

// RecognizerFunc adapts a function to the EntityRecognizer interface.
type RecognizerFunc func(text string) []Entity

// Recognize calls f.
func (f RecognizerFunc) Recognize(text string) []Entity {
	return f(text)
}

// nerLayer wraps an EntityRecognizer as the third screening layer. Its
// findings are PII and vote mask.
type nerLayer struct {
	recognizer EntityRecognizer
}

func (l *nerLayer) Name() string { return "ner" }

func (l *nerLayer) Detect(text string) []Finding {
	var findings []Finding
	for _, e := range l.recognizer.Recognize(text) {
		findings = append(findings, Finding{
			Kind:   KindPII,
			Layer:  l.Name(),
			Rule:   e.Label,
			Start:  e.Start,
			End:    e.End,
			Action: ActionMask,
		})
	}
	return findings
}

// runeOffset converts a byte offset into a rune offset.
//
// Regex matches report byte offsets; masking operates on runes so multi-byte
// content redacts the right span.
func runeOffset(text string, byteOffset int) int {
	return utf8.RuneCountInString(text[:byteOffset])
}

// indexFrom finds the next occurrence of sub at or after start.
func indexFrom(text, sub string, start int) int {
	if start >= len(text) {
		return -1
	}
	idx := strings.Index(text[start:], sub)
	if idx < 0 {
		return -1
	}
	return start + idx
}
