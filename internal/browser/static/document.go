// Package static answers locator queries against parsed HTML, for saved pages
// and tests that do not need a live browser.
package static

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// Document is a parsed HTML page. It is safe for concurrent queries as long
// as nobody mutates the tree.
type Document struct {
	root *html.Node
}

var _ locator.Context = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{root: root}, nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Load reads an HTML document from a file path or an http(s) URL.
func Load(path string) (*Document, error) {
	var (
		root *html.Node
		err  error
	)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		root, err = htmlquery.LoadURL(path)
	} else {
		root, err = htmlquery.LoadDoc(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &Document{root: root}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

func (d *Document) FindAll(ctx context.Context, expr locator.Expression) ([]locator.Element, error) {
	return findAll(ctx, d.root, expr, false)
}

func findAll(ctx context.Context, root *html.Node, expr locator.Expression, excludeRoot bool) ([]locator.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch expr.Strategy {
	case locator.StrategyXPath:
		found, err := htmlquery.QueryAll(root, expr.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", expr.Value, err)
		}
		for _, n := range found {
			if n.Type == html.ElementNode && isDescendant(n, root, !excludeRoot) {
				nodes = append(nodes, n)
			}
		}

	case locator.StrategyCSS:
		sel, err := cascadia.Compile(expr.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", expr.Value, err)
		}
		for _, n := range sel.MatchAll(root) {
			if excludeRoot && n == root {
				continue
			}
			nodes = append(nodes, n)
		}

	case locator.StrategyID:
		nodes = walk(root, excludeRoot, func(n *html.Node) bool {
			return htmlquery.SelectAttr(n, "id") == expr.Value
		})

	case locator.StrategyName:
		nodes = walk(root, excludeRoot, func(n *html.Node) bool {
			return htmlquery.SelectAttr(n, "name") == expr.Value
		})

	case locator.StrategyClassName:
		if expr.Value == "" || strings.ContainsAny(expr.Value, " \t\n") {
			return nil, fmt.Errorf("compound class name %q is not a single class", expr.Value)
		}
		nodes = walk(root, excludeRoot, func(n *html.Node) bool {
			for _, c := range strings.Fields(htmlquery.SelectAttr(n, "class")) {
				if c == expr.Value {
					return true
				}
			}
			return false
		})

	default:
		return nil, fmt.Errorf("unsupported strategy %s", expr.Strategy)
	}

	out := make([]locator.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &Element{node: n}
	}
	return out, nil
}

// walk returns element nodes under root in document order that satisfy match.
func walk(root *html.Node, excludeRoot bool, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && !(excludeRoot && n == root) && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}

func isDescendant(n, root *html.Node, inclusive bool) bool {
	if n == root {
		return inclusive
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
