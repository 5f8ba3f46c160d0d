// Package router holds the route table: registered (path, methods,
// handler) triples plus one default handler.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/canteen/core/http"
)

var (
	ErrDuplicateRoute = errors.New("router: route already registered")
	ErrInvalidPattern = errors.New("router: invalid path pattern")
	ErrNoMethods      = errors.New("router: route has no methods")
	ErrInvalidMethod  = errors.New("router: invalid method")
	ErrNilHandler     = errors.New("router: nil handler")
)

// Route is one registration. It is immutable once registered.
type Route struct {
	Path    string
	Methods []string
	Handler http.Handler

	pattern *pattern
}

// Allows reports whether method is in the route's method set.
func (r *Route) Allows(method string) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Match reports whether the route serves method and path.
func (r *Route) Match(method, path string) (http.Params, bool) {
	if !r.Allows(method) {
		return nil, false
	}
	return r.pattern.match(path)
}

// Table resolves requests to handlers. Routes are tried in registration
// order and the first match wins. It is not safe for concurrent
// registration; resolving is read-only.
type Table struct {
	routes   []*Route
	byPath   map[string]*Route
	fallback http.Handler
}

// NewTable creates a table whose default handler is fallback, or
// http.NotFoundHandler when fallback is nil.
func NewTable(fallback http.Handler) *Table {
	if fallback == nil {
		fallback = http.NotFoundHandler
	}
	return &Table{
		byPath:   make(map[string]*Route),
		fallback: fallback,
	}
}

// Register adds a route. It fails, leaving the table unchanged, when path is
// already registered, the pattern is invalid, or the method set is empty.
func (t *Table) Register(path string, methods []string, h http.Handler) error {
	if h == nil {
		return fmt.Errorf("%w for %q", ErrNilHandler, path)
	}
	if _, ok := t.byPath[path]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, path)
	}

	set, err := methodSet(methods)
	if err != nil {
		return fmt.Errorf("%w for %q", err, path)
	}

	p, err := compilePattern(path)
	if err != nil {
		return err
	}

	r := &Route{Path: path, Methods: set, Handler: h, pattern: p}
	t.routes = append(t.routes, r)
	t.byPath[path] = r
	return nil
}

func methodSet(methods []string) ([]string, error) {
	if len(methods) == 0 {
		return nil, ErrNoMethods
	}
	seen := make(map[string]bool, len(methods))
	set := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if !httpguts.ValidHeaderFieldName(m) {
			return nil, fmt.Errorf("%w %q", ErrInvalidMethod, m)
		}
		if !seen[m] {
			seen[m] = true
			set = append(set, m)
		}
	}
	sort.Strings(set)
	return set, nil
}

// SetDefault replaces the handler used when no route matches.
func (t *Table) SetDefault(h http.Handler) {
	if h == nil {
		h = http.NotFoundHandler
	}
	t.fallback = h
}

// Default returns the handler used when no route matches.
func (t *Table) Default() http.Handler {
	return t.fallback
}

// Resolve returns the handler of the first route matching the request's
// method and path, with the captured parameters, or the default handler.
func (t *Table) Resolve(req *http.Request) (http.Handler, http.Params) {
	if r, params := t.Lookup(req); r != nil {
		return r.Handler, params
	}
	return t.fallback, nil
}

// Lookup returns the first route matching the request's method and path
// with its parameters, or nil.
func (t *Table) Lookup(req *http.Request) (*Route, http.Params) {
	for _, r := range t.routes {
		if params, ok := r.Match(req.Method, req.Path); ok {
			return r, params
		}
	}
	return nil, nil
}

// Allowed returns the sorted union of methods of every route whose pattern
// matches path, regardless of method.
func (t *Table) Allowed(path string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.routes {
		if _, ok := r.pattern.match(path); !ok {
			continue
		}
		for _, m := range r.Methods {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Routes returns the registered routes in registration order.
func (t *Table) Routes() []*Route {
	return append([]*Route(nil), t.routes...)
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// MethodNotAllowed returns a default handler that answers 405 with an Allow
// header when the path exists under another method, and defers to
// notFound otherwise.
func (t *Table) MethodNotAllowed(notFound http.Handler) http.Handler {
	if notFound == nil {
		notFound = http.NotFoundHandler
	}
	return http.HandlerFunc(func(req *http.Request) *http.Response {
		if allowed := t.Allowed(req.Path); len(allowed) > 0 {
			return http.MethodNotAllowed(allowed)
		}
		return notFound.Handle(req)
	})
}
