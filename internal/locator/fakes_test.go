package locator_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

type fakeElement struct {
	tag     string
	attrs   map[string]string
	visible bool
}

func (e *fakeElement) TagName() string { return e.tag }

func (e *fakeElement) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Visible(context.Context) bool { return e.visible }

func el(tag string, visible bool, attrs ...string) *fakeElement {
	m := make(map[string]string)
	for i := 0; i+1 < len(attrs); i += 2 {
		m[attrs[i]] = attrs[i+1]
	}
	return &fakeElement{tag: tag, attrs: m, visible: visible}
}

// fakeContext answers queries from a fixed table and counts every call.
// ID, name and class queries fall back to scanning all elements, and CSS("*")
// returns all elements.
type fakeContext struct {
	mu      sync.Mutex
	all     []locator.Element
	matches map[locator.Expression][]locator.Element
	errs    map[locator.Expression]error
	calls   map[locator.Expression]int
	order   []locator.Expression
}

func newFakeContext(all ...locator.Element) *fakeContext {
	return &fakeContext{
		all:     all,
		matches: make(map[locator.Expression][]locator.Element),
		errs:    make(map[locator.Expression]error),
		calls:   make(map[locator.Expression]int),
	}
}

func (f *fakeContext) on(expr locator.Expression, elems ...locator.Element) *fakeContext {
	f.matches[expr] = elems
	return f
}

func (f *fakeContext) fail(expr locator.Expression, err error) *fakeContext {
	f.errs[expr] = err
	return f
}

func (f *fakeContext) FindAll(_ context.Context, expr locator.Expression) ([]locator.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[expr]++
	f.order = append(f.order, expr)

	if err, ok := f.errs[expr]; ok {
		return nil, err
	}
	if m, ok := f.matches[expr]; ok {
		return m, nil
	}
	if expr == locator.CSS("*") {
		return f.all, nil
	}

	var attr string
	switch expr.Strategy {
	case locator.StrategyID:
		attr = "id"
	case locator.StrategyName:
		attr = "name"
	case locator.StrategyClassName:
		attr = "class"
	default:
		return nil, nil
	}
	var out []locator.Element
	for _, e := range f.all {
		v, ok := e.Attribute(attr)
		if !ok {
			continue
		}
		if attr == "class" {
			for _, tok := range strings.Fields(v) {
				if tok == expr.Value {
					out = append(out, e)
					break
				}
			}
		} else if v == expr.Value {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeContext) callCount(expr locator.Expression) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[expr]
}

func (f *fakeContext) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

type storeWrite struct {
	namespace, key, value, comment string
}

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	writes []storeWrite
	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (s *fakeStore) put(ns, key, value string) *fakeStore {
	s.values[ns+"/"+key] = value
	return s
}

func (s *fakeStore) Get(_ context.Context, ns, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[ns+"/"+key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, ns, key, value, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return fmt.Errorf("write %s/%s: %w", ns, key, s.setErr)
	}
	s.values[ns+"/"+key] = value
	s.writes = append(s.writes, storeWrite{ns, key, value, comment})
	return nil
}

func (s *fakeStore) value(ns, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[ns+"/"+key]
}

func (s *fakeStore) writeLog() []storeWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeWrite(nil), s.writes...)
}
