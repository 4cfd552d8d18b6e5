package locator

import (
	"context"
	"strings"
)

// Tags that are never useful learning targets.
var structuralTags = map[string]bool{
	"html": true, "head": true, "body": true,
}

// everything matches every element in a scope.
var everything = CSS("*")

// Learn scans scope in document order and derives an expression for the
// first visible element. It returns false when nothing visible exists or the
// scan itself fails.
func Learn(ctx context.Context, scope Context, hookAttr string) (Expression, bool) {
	if hookAttr == "" {
		hookAttr = DefaultTestHookAttribute
	}

	elems, err := scope.FindAll(ctx, everything)
	if err != nil {
		return Expression{}, false
	}
	for _, el := range elems {
		if structuralTags[strings.ToLower(el.TagName())] {
			continue
		}
		if !el.Visible(ctx) {
			continue
		}
		return Derive(el, hookAttr), true
	}
	return Expression{}, false
}

// Derive builds an expression for el from its most trustworthy attribute:
// id, then the test hook attribute, then name, then the first class token,
// and finally the tag name.
func Derive(el Element, hookAttr string) Expression {
	if v, ok := attr(el, "id"); ok {
		return ID(v)
	}
	if v, ok := attr(el, hookAttr); ok {
		return CSS("[" + hookAttr + "='" + cssQuote(v) + "']")
	}
	if v, ok := attr(el, "name"); ok {
		return Name(v)
	}
	if v, ok := attr(el, "class"); ok {
		if fields := strings.Fields(v); len(fields) > 0 {
			return ClassName(fields[0])
		}
	}
	return CSS(strings.ToLower(el.TagName()))
}

// attr returns a trimmed, non-empty attribute value. Values containing '|'
// are skipped because the stored form would split into two steps.
func attr(el Element, name string) (string, bool) {
	v, ok := el.Attribute(name)
	v = strings.TrimSpace(v)
	return v, ok && v != "" && !strings.Contains(v, "|")
}

// cssQuote escapes a value for use inside a single quoted CSS string.
func cssQuote(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
