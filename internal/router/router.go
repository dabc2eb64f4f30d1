// Package router dispatches requests for the site: exact matches for the
// config-declared page routes and the API endpoint, prefix matches for the
// static asset tree, and a fallback that renders the 404 page instead of
// the plain-text http.NotFound.
package router

import (
	"net/http"
	"strings"
)

// Router matches a request path against the registered routes. Exact
// routes win over prefixes; prefixes are tried in registration order.
type Router struct {
	routes   map[string]http.Handler
	subtrees []subtree
	fallback http.Handler
}

type subtree struct {
	prefix  string
	handler http.Handler
}

// New returns an empty Router. Until NotFound is set, unmatched paths get
// http.NotFound.
func New() *Router {
	return &Router{
		routes: make(map[string]http.Handler),
	}
}

// Handle registers handler for exactly path. Registering the same path
// again replaces the previous handler. Empty paths and nil handlers are
// ignored.
func (r *Router) Handle(path string, handler http.Handler) {
	if path == "" || handler == nil {
		return
	}
	r.routes[path] = handler
}

// HandleFunc is Handle for a plain handler function.
func (r *Router) HandleFunc(path string, fn http.HandlerFunc) {
	if fn == nil {
		return
	}
	r.Handle(path, http.HandlerFunc(fn))
}

// HandlePrefix registers handler for every path under prefix. The site
// uses this for /static/; the handler sees the full request path.
func (r *Router) HandlePrefix(prefix string, handler http.Handler) {
	if prefix == "" || handler == nil {
		return
	}
	r.subtrees = append(r.subtrees, subtree{prefix: prefix, handler: handler})
}

// NotFound sets the handler for paths no route matches.
func (r *Router) NotFound(handler http.Handler) {
	r.fallback = handler
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if handler, ok := r.routes[req.URL.Path]; ok {
		handler.ServeHTTP(w, req)
		return
	}

	for _, st := range r.subtrees {
		if strings.HasPrefix(req.URL.Path, st.prefix) {
			st.handler.ServeHTTP(w, req)
			return
		}
	}

	if r.fallback != nil {
		r.fallback.ServeHTTP(w, req)
		return
	}

	http.NotFound(w, req)
}
