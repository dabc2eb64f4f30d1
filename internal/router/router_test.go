package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func record(r *Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func tag(t *testing.T, body string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestRouterDispatch(t *testing.T) {
	r := New()
	r.Handle("/", tag(t, "home"))
	r.Handle("/contact", tag(t, "contact"))
	r.HandlePrefix("/static/", tag(t, "static"))
	r.NotFound(tag(t, "missing"))

	tests := []struct {
		path string
		want string
	}{
		{"/", "home"},
		{"/contact", "contact"},
		{"/static/app.css", "static"},
		{"/static/img/panels.webp", "static"},
		{"/nope", "missing"},
		{"/contact/extra", "missing"},
	}

	for _, tt := range tests {
		if got := record(r, tt.path).Body.String(); got != tt.want {
			t.Fatalf("%s routed to %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRouterExactWinsOverPrefix(t *testing.T) {
	r := New()
	r.HandlePrefix("/static/", tag(t, "tree"))
	r.Handle("/static/app.js", tag(t, "pinned"))

	if got := record(r, "/static/app.js").Body.String(); got != "pinned" {
		t.Fatalf("exact route lost to prefix: %q", got)
	}
}

func TestRouterDefaultNotFound(t *testing.T) {
	r := New()
	r.Handle("/", tag(t, "home"))

	if rec := record(r, "/gone"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRouterIgnoresInvalidRegistrations(t *testing.T) {
	r := New()
	r.Handle("", tag(t, "x"))
	r.Handle("/ok", nil)
	r.HandleFunc("/fn", nil)
	r.HandlePrefix("", tag(t, "x"))

	if rec := record(r, "/ok"); rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler should not register, got %d", rec.Code)
	}
}
