package locator

import (
	"strings"
	"unicode"
)

// DefaultTestHookAttribute is the attribute test authors add for stable hooks.
const DefaultTestHookAttribute = "data-test"

// Origin records where a chain step came from.
type Origin int

const (
	OriginConfigured Origin = iota
	OriginFallback
	OriginGenerated
	OriginLearned
)

func (o Origin) String() string {
	switch o {
	case OriginConfigured:
		return "configured"
	case OriginFallback:
		return "fallback"
	case OriginGenerated:
		return "generated"
	case OriginLearned:
		return "learned"
	default:
		return "unknown"
	}
}

type Step struct {
	Expression Expression
	Origin     Origin
}

// Chain is an ordered list of steps, most trusted first.
type Chain []Step

// Expressions returns the chain's expressions in order.
func (c Chain) Expressions() []Expression {
	out := make([]Expression, len(c))
	for i, s := range c {
		out[i] = s.Expression
	}
	return out
}

type category struct {
	keywords  []string
	selectors []string
}

// Evaluated in table order.
var categories = []category{
	{
		keywords:  []string{"button", "btn", "submit"},
		selectors: []string{"button", "[role='button']", "input[type='submit']", "input[type='button']"},
	},
	{
		keywords:  []string{"input", "field", "textbox", "textarea"},
		selectors: []string{"input", "textarea", "[role='textbox']"},
	},
	{
		keywords:  []string{"link", "anchor"},
		selectors: []string{"a", "[role='link']"},
	},
	{
		keywords:  []string{"select", "dropdown", "combobox"},
		selectors: []string{"select", "[role='combobox']", "[role='listbox']"},
	},
	{
		keywords:  []string{"checkbox"},
		selectors: []string{"input[type='checkbox']", "[role='checkbox']"},
	},
	{
		keywords:  []string{"radio"},
		selectors: []string{"input[type='radio']", "[role='radio']"},
	},
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "into": true,
	"from": true, "this": true, "that": true, "page": true, "element": true,
}

// BuildChain assembles a chain: configured expressions, then explicit
// fallbacks, then fallbacks generated from description. Duplicates keep
// their first position. Nothing is generated for an empty description.
func BuildChain(configured, fallbacks []Expression, description, hookAttr string) Chain {
	if hookAttr == "" {
		hookAttr = DefaultTestHookAttribute
	}

	var chain Chain
	seen := make(map[Expression]bool)
	add := func(e Expression, o Origin) {
		if e.IsZero() || seen[e] {
			return
		}
		seen[e] = true
		chain = append(chain, Step{Expression: e, Origin: o})
	}

	for _, e := range configured {
		add(e, OriginConfigured)
	}
	for _, e := range fallbacks {
		add(e, OriginFallback)
	}
	for _, e := range GenerateFallbacks(description, hookAttr) {
		add(e, OriginGenerated)
	}
	return chain
}

// GenerateFallbacks derives expressions from a free-text element description.
// Keyword categories come first, then attribute-contains selectors for the
// remaining words, then the generic attribute-presence selectors.
func GenerateFallbacks(description, hookAttr string) []Expression {
	words := tokenize(description)
	if len(words) == 0 {
		return nil
	}

	var out []Expression
	matched := make(map[string]bool)
	for _, c := range categories {
		hit := false
		for _, kw := range c.keywords {
			for _, w := range words {
				if w == kw {
					hit = true
					matched[w] = true
				}
			}
		}
		if hit {
			for _, sel := range c.selectors {
				out = append(out, CSS(sel))
			}
		}
	}

	for _, w := range words {
		if matched[w] || stopwords[w] || len(w) < 3 {
			continue
		}
		out = append(out,
			CSS("["+hookAttr+"*='"+w+"']"),
			CSS("[id*='"+w+"']"),
			CSS("[name*='"+w+"']"),
			CSS("[class*='"+w+"']"),
		)
	}

	return append(out, CSS("["+hookAttr+"]"), CSS("[id]"), CSS("[class]"))
}

// tokenize lowercases s and splits it into distinct alphanumeric words, in order.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
