package locator

import (
	"fmt"
	"strings"
)

// Strategy identifies how an Expression's value is interpreted by a query source.
type Strategy int

const (
	StrategyID Strategy = iota
	StrategyCSS
	StrategyXPath
	StrategyName
	StrategyClassName
)

func (s Strategy) String() string {
	switch s {
	case StrategyID:
		return "id"
	case StrategyCSS:
		return "css"
	case StrategyXPath:
		return "xpath"
	case StrategyName:
		return "name"
	case StrategyClassName:
		return "class"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Expression is a single way of finding elements. It is a plain value and
// safe to compare with ==.
type Expression struct {
	Strategy Strategy
	Value    string
}

func ID(v string) Expression        { return Expression{Strategy: StrategyID, Value: v} }
func CSS(v string) Expression       { return Expression{Strategy: StrategyCSS, Value: v} }
func XPath(v string) Expression     { return Expression{Strategy: StrategyXPath, Value: v} }
func Name(v string) Expression      { return Expression{Strategy: StrategyName, Value: v} }
func ClassName(v string) Expression { return Expression{Strategy: StrategyClassName, Value: v} }

// IsZero reports whether e carries no value.
func (e Expression) IsZero() bool {
	return e.Value == ""
}

// String returns the canonical form that gets written to a locator store.
// A bare value is used when it reparses to the same expression, otherwise the
// explicit prefix is added so Parse(e.String()) == e.
func (e Expression) String() string {
	if Parse(e.Value) == e {
		return e.Value
	}
	return e.Strategy.String() + "=" + e.Value
}

type prefixRule struct {
	prefix   string
	strategy Strategy
}

// Order matters, first match wins.
var prefixRules = []prefixRule{
	{"xpath=", StrategyXPath},
	{"xpath:", StrategyXPath},
	{"css=", StrategyCSS},
	{"css:", StrategyCSS},
	{"id=", StrategyID},
	{"name=", StrategyName},
	{"class=", StrategyClassName},
}

// Parse converts a raw locator string into an Expression. It never fails;
// ambiguous input defaults to a CSS selector.
func Parse(raw string) Expression {
	s := strings.TrimSpace(raw)

	for _, r := range prefixRules {
		if strings.HasPrefix(s, r.prefix) {
			return Expression{Strategy: r.strategy, Value: strings.TrimSpace(s[len(r.prefix):])}
		}
	}

	switch {
	case strings.HasPrefix(s, "//"):
		return XPath(s)
	case strings.HasPrefix(s, ".") || strings.HasPrefix(s, "#"):
		return CSS(s)
	case s != "" && !strings.ContainsAny(s, " \t["):
		return ID(s)
	default:
		return CSS(s)
	}
}

// ParseChain splits a stored value on '|' into an ordered list of
// expressions. Blank segments are dropped.
func ParseChain(raw string) []Expression {
	var out []Expression
	for _, seg := range strings.Split(raw, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, Parse(seg))
	}
	return out
}

// FormatChain joins expressions into the '|' separated stored form.
func FormatChain(exprs []Expression) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, " | ")
}
