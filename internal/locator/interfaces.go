package locator

import "context"

// Element is a handle to a single matched node. Implementations are owned by
// the query backend and are only valid while the underlying document is.
type Element interface {
	TagName() string
	Attribute(name string) (string, bool)
	// Visible reports whether the element is currently rendered and
	// interactable. Backends that cannot determine this return false.
	Visible(ctx context.Context) bool
}

// Context is a search scope: a whole document or the subtree under one element.
// Query errors are reported per call and never poison the context.
type Context interface {
	FindAll(ctx context.Context, expr Expression) ([]Element, error)
}

// Store is the durable namespace/key to locator string mapping.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	// Set upserts value and attaches comment to it for auditing.
	Set(ctx context.Context, namespace, key, value, comment string) error
}

// Key names one locator inside a namespace (usually a page).
type Key struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (k Key) IsZero() bool {
	return k.Namespace == "" && k.Name == ""
}

func (k Key) String() string {
	if k.IsZero() {
		return "<anonymous>"
	}
	return k.Namespace + "/" + k.Name
}
