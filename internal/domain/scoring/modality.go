package scoring

import (
	"math"
	"strings"
)

// DefaultModalityCount is used when no rule matches.
const DefaultModalityCount = 1

// ModalityHints are the raw request fields modality count can be inferred from.
type ModalityHints struct {
	Explicit *float64 // "modalities"
	Tags     []string
	Title    string
	Mode     string
}

// ModalityRule returns the inferred count and true when it applies.
type ModalityRule func(h ModalityHints) (int, bool)

// ModalityInferer evaluates rules in order; the first match wins.
type ModalityInferer struct {
	rules []ModalityRule
}

// NewModalityInferer builds an inferer. With no rules it uses DefaultModalityRules.
func NewModalityInferer(rules ...ModalityRule) *ModalityInferer {
	if len(rules) == 0 {
		rules = DefaultModalityRules()
	}
	return &ModalityInferer{rules: rules}
}

// Infer returns the modality count for h, never less than 1.
func (m *ModalityInferer) Infer(h ModalityHints) int {
	for _, rule := range m.rules {
		if n, ok := rule(h); ok && n >= 1 {
			return n
		}
	}
	return DefaultModalityCount
}

// DefaultModalityRules is explicit count, then tag count, then title/mode keywords.
func DefaultModalityRules() []ModalityRule {
	return []ModalityRule{
		ExplicitModalities,
		TagModalities,
		KeywordModalities("quad", 4),
		KeywordModalities("dual", 2),
	}
}

// InferModalities applies DefaultModalityRules.
func InferModalities(h ModalityHints) int {
	return defaultInferer.Infer(h)
}

var defaultInferer = NewModalityInferer()

// ExplicitModalities uses a positive, finite explicit count (floored).
func ExplicitModalities(h ModalityHints) (int, bool) {
	if h.Explicit == nil {
		return 0, false
	}
	v := *h.Explicit
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 0, false
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(math.Floor(v)), true
}

// TagModalities counts stimulus tags.
func TagModalities(h ModalityHints) (int, bool) {
	if len(h.Tags) == 0 {
		return 0, false
	}
	return len(h.Tags), true
}

// KeywordModalities matches keyword case-insensitively in the title, or the
// mode when the title is empty.
func KeywordModalities(keyword string, count int) ModalityRule {
	keyword = strings.ToLower(keyword)
	return func(h ModalityHints) (int, bool) {
		text := h.Title
		if strings.TrimSpace(text) == "" {
			text = h.Mode
		}
		if strings.Contains(strings.ToLower(text), keyword) {
			return count, true
		}
		return 0, false
	}
}
