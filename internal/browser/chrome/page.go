package chrome

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

const defaultQueryTimeout = 5 * time.Second

// Page is the document currently loaded in a tab.
type Page struct {
	exec    ActionExecutor
	timeout time.Duration
}

var _ locator.Context = (*Page)(nil)

// NewPage wraps exec. Each query is bounded by timeout.
func NewPage(exec ActionExecutor, timeout time.Duration) *Page {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Page{exec: exec, timeout: timeout}
}

func (p *Page) FindAll(ctx context.Context, expr locator.Expression) ([]locator.Element, error) {
	return p.query(ctx, expr, nil)
}

// query runs expr against the document, or against the subtree of scope.
// It never waits for elements to appear.
func (p *Page) query(ctx context.Context, expr locator.Expression, scope *cdp.Node) ([]locator.Element, error) {
	sel, by, err := translate(expr)
	if err != nil {
		return nil, err
	}

	opts := []chromedp.QueryOption{by, chromedp.AtLeast(0)}
	if scope != nil && expr.Strategy != locator.StrategyXPath {
		opts = append(opts, chromedp.FromNode(scope))
	}

	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := p.exec.RunActions(qctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", expr, err)
	}

	out := make([]locator.Element, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.NodeType != cdp.NodeTypeElement {
			continue
		}
		// XPath search is document wide, scope it here.
		if scope != nil && expr.Strategy == locator.StrategyXPath && !within(n, scope) {
			continue
		}
		out = append(out, &Element{page: p, node: n})
	}
	return out, nil
}

// translate maps an expression onto a chromedp selector. ID, name and class
// become attribute selectors so values never need CSS identifier escaping.
func translate(expr locator.Expression) (string, chromedp.QueryOption, error) {
	switch expr.Strategy {
	case locator.StrategyCSS:
		return expr.Value, chromedp.ByQueryAll, nil
	case locator.StrategyXPath:
		return expr.Value, chromedp.BySearch, nil
	case locator.StrategyID:
		return "[id=" + cssString(expr.Value) + "]", chromedp.ByQueryAll, nil
	case locator.StrategyName:
		return "[name=" + cssString(expr.Value) + "]", chromedp.ByQueryAll, nil
	case locator.StrategyClassName:
		if expr.Value == "" || strings.ContainsAny(expr.Value, " \t\n") {
			return "", nil, fmt.Errorf("compound class name %q is not a single class", expr.Value)
		}
		return "[class~=" + cssString(expr.Value) + "]", chromedp.ByQueryAll, nil
	default:
		return "", nil, fmt.Errorf("unsupported strategy %s", expr.Strategy)
	}
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

func cssString(v string) string {
	return `"` + cssEscaper.Replace(v) + `"`
}

func within(n, scope *cdp.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.NodeID == scope.NodeID {
			return true
		}
	}
	return false
}
