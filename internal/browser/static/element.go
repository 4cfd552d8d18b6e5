package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// Element wraps a node of a parsed Document. It is also a search scope for
// its own subtree.
type Element struct {
	node *html.Node
}

var (
	_ locator.Element = (*Element)(nil)
	_ locator.Context = (*Element)(nil)
)

// NewElement wraps an element node.
func NewElement(n *html.Node) *Element { return &Element{node: n} }

func (e *Element) Node() *html.Node { return e.node }

func (e *Element) TagName() string { return strings.ToLower(e.node.Data) }

func (e *Element) Attribute(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// Text returns the element's text content.
func (e *Element) Text() string { return strings.TrimSpace(htmlquery.InnerText(e.node)) }

func (e *Element) FindAll(ctx context.Context, expr locator.Expression) ([]locator.Element, error) {
	return findAll(ctx, e.node, expr, true)
}

// Tags whose content is never rendered.
var invisibleTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true, "base": true,
}

// Visible approximates rendering from markup alone: the element and its
// ancestors must not be in a non-rendered tag, carry the hidden attribute, or
// be hidden by an inline style. Stylesheets are not evaluated.
func (e *Element) Visible(context.Context) bool {
	if e.TagName() == "input" && strings.EqualFold(htmlquery.SelectAttr(e.node, "type"), "hidden") {
		return false
	}
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if invisibleTags[strings.ToLower(n.Data)] {
			return false
		}
		for _, a := range n.Attr {
			switch strings.ToLower(a.Key) {
			case "hidden":
				return false
			case "aria-hidden":
				if strings.EqualFold(a.Val, "true") {
					return false
				}
			case "style":
				if inlineHidden(a.Val) {
					return false
				}
			}
		}
	}
	return true
}

func inlineHidden(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch {
		case prop == "display" && val == "none":
			return true
		case prop == "visibility" && (val == "hidden" || val == "collapse"):
			return true
		}
	}
	return false
}

// XPath returns an absolute XPath that selects this element, anchored at the
// nearest ancestor with an id when there is one.
func (e *Element) XPath() string {
	var path []string
	for n := e.node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode || n.Data == "" {
			continue
		}
		if id := htmlquery.SelectAttr(n, "id"); id != "" && !strings.Contains(id, "'") {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}
		tag := strings.ToLower(n.Data)
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}
	if len(path) == 0 {
		return "/"
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	xp := strings.Join(path, "/")
	if !strings.HasPrefix(xp, "//") {
		xp = "/" + xp
	}
	return xp
}
