package locator

import "context"

// Page binds a namespace and a search scope to a resolver so page objects can
// look elements up by name.
type Page struct {
	resolver  *Resolver
	namespace string
	scope     Context
}

func NewPage(r *Resolver, namespace string, scope Context) *Page {
	return &Page{resolver: r, namespace: namespace, scope: scope}
}

// Within returns a page that searches under scope instead.
func (p *Page) Within(scope Context) *Page {
	return &Page{resolver: p.resolver, namespace: p.namespace, scope: scope}
}

// Find resolves the locator called name. description feeds generated
// fallbacks and may be empty.
func (p *Page) Find(ctx context.Context, name, description string, fallbacks ...Expression) (*Result, error) {
	return p.resolver.Resolve(ctx, p.scope, Request{
		Key:         Key{Namespace: p.namespace, Name: name},
		Fallbacks:   fallbacks,
		Description: description,
	})
}

// FindOne is Find returning only the first element.
func (p *Page) FindOne(ctx context.Context, name, description string, fallbacks ...Expression) (Element, error) {
	res, err := p.Find(ctx, name, description, fallbacks...)
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}
