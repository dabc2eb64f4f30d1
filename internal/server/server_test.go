package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thirdfuse/solarsite/internal/assets"
	"github.com/thirdfuse/solarsite/internal/config"
	"github.com/thirdfuse/solarsite/internal/form"
	"github.com/thirdfuse/solarsite/internal/ratelimit"
)

func TestServerHandlers(t *testing.T) {
	cfg, src := setupTestEnvironment(t)

	srv, err := New(cfg, src, nil, true)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	srv.router.Handle("/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Run("page", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("get /: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
			t.Fatalf("unexpected content type: %s", ct)
		}

		if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=300" {
			t.Fatalf("unexpected cache-control: %s", cc)
		}

		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Home") {
			t.Fatalf("expected body to contain title, got %q", body)
		}
	})

	t.Run("etag", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/static/app.css")
		if err != nil {
			t.Fatalf("get static: %v", err)
		}
		resp.Body.Close()

		etag := resp.Header.Get("ETag")
		if etag == "" {
			t.Fatalf("missing ETag in response")
		}

		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/static/app.css", nil)
		req.Header.Set("If-None-Match", etag)

		resp2, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("conditional get: %v", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusNotModified {
			t.Fatalf("expected 304, got %d", resp2.StatusCode)
		}
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/missing")
		if err != nil {
			t.Fatalf("get missing: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}

		if resp.Header.Get("Cache-Control") != "no-store, max-age=0" {
			t.Fatalf("expected no-store cache control")
		}
	})

	t.Run("panic", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/boom")
		if err != nil {
			t.Fatalf("get boom: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", resp.StatusCode)
		}

		if resp.Header.Get("Cache-Control") != "no-store, max-age=0" {
			t.Fatalf("expected no-store cache control on 500")
		}
	})

	t.Run("sitemap and robots", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/sitemap.xml")
		if err != nil {
			t.Fatalf("sitemap: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for sitemap, got %d", resp.StatusCode)
		}

		resp2, err := http.Get(ts.URL + "/robots.txt")
		if err != nil {
			t.Fatalf("robots: %v", err)
		}
		body, _ := io.ReadAll(resp2.Body)
		resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for robots, got %d", resp2.StatusCode)
		}
		if !strings.Contains(string(body), "Disallow: /api/") {
			t.Fatalf("expected robots to keep crawlers out of the API, got %q", body)
		}
	})
}

func TestPageLocales(t *testing.T) {
	tdir := t.TempDir()
	webDir := filepath.Join(tdir, "web")

	mustWrite(t, filepath.Join(webDir, "pages", "home.html"), `<!doctype html><html><body><h1>{{.Content.headline}}</h1></body></html>`)
	mustWrite(t, filepath.Join(webDir, "static", "app.css"), "")
	mustWrite(t, filepath.Join(webDir, "content", "en", "site.json"), `{"headline":"Power Your Future"}`)
	mustWrite(t, filepath.Join(webDir, "content", "hi", "site.json"), `{"headline":"अपने भविष्य को ऊर्जा दें"}`)

	cfg := testConfig(webDir, config.Route{Path: "/", Page: "home.html", Title: "Home"})
	cfg.Site.Locales = []string{"en", "hi"}

	srv := newTestServer(t, cfg, webDir)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	get := func(url, acceptLanguage string) string {
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		if acceptLanguage != "" {
			req.Header.Set("Accept-Language", acceptLanguage)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get %s: %v", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get %s: expected 200, got %d", url, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get(ts.URL+"/", ""); !strings.Contains(body, "Power Your Future") {
		t.Fatalf("expected default locale content, got %q", body)
	}

	if body := get(ts.URL+"/?lang=hi", ""); !strings.Contains(body, "ऊर्जा") {
		t.Fatalf("expected hindi content for ?lang=hi, got %q", body)
	}

	if body := get(ts.URL+"/", "hi-IN,hi;q=0.9"); !strings.Contains(body, "ऊर्जा") {
		t.Fatalf("expected hindi content for Accept-Language, got %q", body)
	}
}

func TestContactSubmit(t *testing.T) {
	srv, fake := newContactServer(t)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	status, envelope := postContact(t, ts.URL, map[string]any{
		"name":    "  Jane Doe ",
		"email":   "Jane@Example.TEST",
		"phone":   "+1 555 0100",
		"message": "I am interested in solar panels for my home.",
	})

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !envelope.OK {
		t.Fatalf("expected ok response, got %+v", envelope)
	}
	if !strings.Contains(envelope.Message, "24 hours") {
		t.Fatalf("unexpected confirmation message: %q", envelope.Message)
	}

	if len(fake.subs) != 1 {
		t.Fatalf("expected 1 dispatched submission, got %d", len(fake.subs))
	}

	got := fake.subs[0]
	if got.Name != "Jane Doe" {
		t.Fatalf("expected trimmed name, got %q", got.Name)
	}
	if got.Email != "jane@example.test" {
		t.Fatalf("expected lowercased email, got %q", got.Email)
	}
}

func TestContactMethodNotAllowed(t *testing.T) {
	srv, fake := newContactServer(t)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + contactPath)
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.OK || envelope.Message != "Method not allowed" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	if len(fake.subs) != 0 {
		t.Fatalf("sender must not be called, got %d submissions", len(fake.subs))
	}
}

func TestContactHoneypot(t *testing.T) {
	srv, fake := newContactServer(t)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// Other fields are invalid on purpose; the honeypot must win before
	// validation so the bot learns nothing.
	status, envelope := postContact(t, ts.URL, map[string]any{
		"name":     "x",
		"email":    "not-an-email",
		"message":  "short",
		"botField": "gotcha",
	})

	if status != http.StatusOK {
		t.Fatalf("expected deceptive 200, got %d", status)
	}
	if !envelope.OK || envelope.Message != "Message sent successfully" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if len(envelope.Errors) != 0 {
		t.Fatalf("honeypot response must not carry field errors: %+v", envelope.Errors)
	}
	if len(fake.subs) != 0 {
		t.Fatalf("sender must not be called for bots, got %d submissions", len(fake.subs))
	}
}

func TestContactValidation(t *testing.T) {
	srv, fake := newContactServer(t)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	status, envelope := postContact(t, ts.URL, map[string]any{
		"name":    "J",
		"email":   "nope",
		"message": "hi",
	})

	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if envelope.OK || envelope.Message != "Validation failed" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	want := map[string]string{
		"name":    form.MsgNameTooShort,
		"email":   form.MsgEmailInvalid,
		"message": form.MsgMessageTooShort,
	}
	for field, msg := range want {
		if envelope.Errors[field] != msg {
			t.Fatalf("field %s: expected %q, got %q", field, msg, envelope.Errors[field])
		}
	}

	if len(fake.subs) != 0 {
		t.Fatalf("sender must not be called on validation failure")
	}
}

func TestContactInvalidBody(t *testing.T) {
	srv, _ := newContactServer(t)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+contactPath, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post contact: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.OK || envelope.Message != "Invalid request body" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestContactDispatchFailure(t *testing.T) {
	srv, fake := newContactServer(t)
	fake.err = errors.New("smtp connect: connection refused")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	status, envelope := postContact(t, ts.URL, validSubmission())

	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if envelope.OK {
		t.Fatalf("expected error envelope, got %+v", envelope)
	}
	if strings.Contains(envelope.Message, "refused") {
		t.Fatalf("raw error leaked to the client: %q", envelope.Message)
	}
	if !strings.Contains(envelope.Message, "Failed to send message") {
		t.Fatalf("unexpected message: %q", envelope.Message)
	}
}

func TestContactPanicReturnsJSON(t *testing.T) {
	srv, fake := newContactServer(t)
	fake.panics = true

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	status, envelope := postContact(t, ts.URL, validSubmission())

	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if envelope.OK || !strings.Contains(envelope.Message, "unexpected error") {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestContactRateLimit(t *testing.T) {
	srv, fake := newContactServer(t)

	var mu sync.Mutex
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	srv.WithLimiter(ratelimit.NewWindow(5, time.Minute).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for i := 0; i < 5; i++ {
		status, _ := postContact(t, ts.URL, validSubmission())
		if status != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, status)
		}
	}

	status, envelope := postContact(t, ts.URL, validSubmission())
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 6th request, got %d", status)
	}
	if envelope.OK || !strings.Contains(envelope.Message, "Too many requests") {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if len(fake.subs) != 5 {
		t.Fatalf("expected 5 dispatched submissions, got %d", len(fake.subs))
	}

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	status, _ = postContact(t, ts.URL, validSubmission())
	if status != http.StatusOK {
		t.Fatalf("expected fresh window to admit again, got %d", status)
	}
}

type apiEnvelope struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func postContact(t *testing.T, baseURL string, payload map[string]any) (int, apiEnvelope) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resp, err := http.Post(baseURL+contactPath, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post contact: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected JSON response, got content type %q", ct)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return resp.StatusCode, envelope
}

func validSubmission() map[string]any {
	return map[string]any{
		"name":    "Jane Doe",
		"email":   "jane@example.test",
		"message": "I am interested in solar panels for my home.",
	}
}

func newContactServer(t *testing.T) (*Server, *fakeSender) {
	t.Helper()
	tdir := t.TempDir()
	webDir := filepath.Join(tdir, "web")

	mustWrite(t, filepath.Join(webDir, "pages", "home.html"), `<!doctype html><html><body><h1>Home</h1></body></html>`)
	mustWrite(t, filepath.Join(webDir, "pages", "contact.html"), `<!doctype html><html><body><form></form></body></html>`)
	mustWrite(t, filepath.Join(webDir, "static", "app.css"), "")

	cfg := testConfig(webDir,
		config.Route{Path: "/", Page: "home.html", Title: "Home"},
		config.Route{Path: "/contact", Page: "contact.html", Title: "Contact"},
	)
	cfg.Contact = config.Contact{Recipient: "owners@example.test"}

	srv := newTestServer(t, cfg, webDir)

	fake := &fakeSender{}
	srv.WithSender(fake)

	return srv, fake
}

func newTestServer(t *testing.T, cfg *config.Config, webDir string) *Server {
	t.Helper()

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(webDir, "pages", name))
		return err == nil
	}
	if err := cfg.Validate(exists); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	src, err := assets.NewDisk(webDir)
	if err != nil {
		t.Fatalf("new disk source: %v", err)
	}

	srv, err := New(cfg, src, nil, true)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	return srv
}

func testConfig(webDir string, routes ...config.Route) *config.Config {
	cfg := &config.Config{
		Site: config.Site{
			Name:          "Third Fuse Energy",
			BaseURL:       "https://example.test",
			DefaultLocale: "en",
			Locales:       []string{"en"},
		},
		Routes: routes,
	}
	cfg.WithLoadedTime(time.Now())
	return cfg
}

func setupTestEnvironment(t *testing.T) (*config.Config, *assets.Source) {
	t.Helper()
	tdir := t.TempDir()
	webDir := filepath.Join(tdir, "web")

	mustWrite(t, filepath.Join(webDir, "pages", "home.html"), `<!doctype html><html><head><link rel="stylesheet" href="/static/app.css"></head><body><h1>Home</h1></body></html>`)
	mustWrite(t, filepath.Join(webDir, "static", "app.css"), "body { color: #000; }")

	cfg := testConfig(webDir, config.Route{Path: "/", Page: "home.html", Title: "Home"})

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(webDir, "pages", name))
		return err == nil
	}
	if err := cfg.Validate(exists); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	src, err := assets.NewDisk(webDir)
	if err != nil {
		t.Fatalf("new disk source: %v", err)
	}

	return cfg, src
}

type fakeSender struct {
	err    error
	panics bool
	mu     sync.Mutex
	subs   []form.Submission
}

func (f *fakeSender) Send(_ context.Context, sub form.Submission) error {
	if f.panics {
		panic("sender exploded")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return nil
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
