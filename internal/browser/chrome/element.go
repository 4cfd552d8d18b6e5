package chrome

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// Element is a node in a live tab. It is only valid until the document changes.
type Element struct {
	page *Page
	node *cdp.Node
}

var (
	_ locator.Element = (*Element)(nil)
	_ locator.Context = (*Element)(nil)
)

func (e *Element) Node() *cdp.Node { return e.node }

func (e *Element) TagName() string {
	if e.node.LocalName != "" {
		return strings.ToLower(e.node.LocalName)
	}
	return strings.ToLower(e.node.NodeName)
}

func (e *Element) Attribute(name string) (string, bool) {
	attrs := e.node.Attributes
	for i := 0; i+1 < len(attrs); i += 2 {
		if strings.EqualFold(attrs[i], name) {
			return attrs[i+1], true
		}
	}
	return "", false
}

func (e *Element) FindAll(ctx context.Context, expr locator.Expression) ([]locator.Element, error) {
	return e.page.query(ctx, expr, e.node)
}

// visibleJS mirrors what a user can see: the element has a box, is not
// hidden by computed style and is not fully transparent.
const visibleJS = `function() {
	if (!this.isConnected) return false;
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
	if (parseFloat(style.opacity) === 0) return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

// Visible asks the page. Any protocol error counts as not visible.
func (e *Element) Visible(ctx context.Context) bool {
	qctx, cancel := context.WithTimeout(ctx, e.page.timeout)
	defer cancel()

	var visible bool
	err := e.page.exec.RunActions(qctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.CallFunctionOnNode(ctx, e.node, visibleJS, &visible)
	}))
	return err == nil && visible
}
