package locator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

func TestDerivePriority(t *testing.T) {
	tests := []struct {
		name string
		el   *fakeElement
		want locator.Expression
	}{
		{"id wins", el("input", true, "id", "email", "data-test", "email-input", "name", "email"), locator.ID("email")},
		{"hook attribute", el("input", true, "data-test", "email-input", "name", "email"), locator.CSS("[data-test='email-input']")},
		{"hook attribute quoted", el("div", true, "data-test", "it's"), locator.CSS(`[data-test='it\'s']`)},
		{"name", el("input", true, "name", "email", "class", "form-control"), locator.Name("email")},
		{"first class token", el("button", true, "class", "  btn btn-primary"), locator.ClassName("btn")},
		{"blank attributes skipped", el("SPAN", true, "id", " ", "class", ""), locator.CSS("span")},
		{"piped hook value skipped", el("button", true, "data-test", "save|primary", "name", "save"), locator.Name("save")},
		{"piped id skipped", el("div", true, "id", "a|b", "class", "card"), locator.ClassName("card")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, locator.Derive(tt.el, "data-test"))
		})
	}
}

func TestLearnSkipsStructuralAndHidden(t *testing.T) {
	scope := newFakeContext(
		el("html", true),
		el("head", true),
		el("body", true, "class", "page"),
		el("div", false, "id", "modal"),
		el("a", true, "data-qa", "home"),
		el("button", true, "id", "later"),
	)

	got, ok := locator.Learn(context.Background(), scope, "data-qa")
	assert.True(t, ok)
	assert.Equal(t, locator.CSS("[data-qa='home']"), got)
}

func TestLearnScanFailure(t *testing.T) {
	scope := newFakeContext().fail(locator.CSS("*"), errors.New("target closed"))
	_, ok := locator.Learn(context.Background(), scope, "")
	assert.False(t, ok)
}

func TestDerivedExpressionsReadBackAsOneStep(t *testing.T) {
	elems := []*fakeElement{
		el("input", true, "id", "email"),
		el("button", true, "data-test", "save|primary"),
		el("button", true, "data-test", "it's"),
		el("input", true, "name", "q"),
		el("a", true, "class", "nav-link active"),
		el("P", true),
	}
	for _, e := range elems {
		expr := locator.Derive(e, "data-test")
		assert.Equal(t, []locator.Expression{expr}, locator.ParseChain(expr.String()), expr.String())
	}
}
