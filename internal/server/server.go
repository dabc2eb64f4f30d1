package server

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thirdfuse/solarsite/internal/assets"
	"github.com/thirdfuse/solarsite/internal/config"
	"github.com/thirdfuse/solarsite/internal/content"
	errorspkg "github.com/thirdfuse/solarsite/internal/errors"
	"github.com/thirdfuse/solarsite/internal/form"
	"github.com/thirdfuse/solarsite/internal/mail"
	"github.com/thirdfuse/solarsite/internal/middleware"
	"github.com/thirdfuse/solarsite/internal/pages"
	"github.com/thirdfuse/solarsite/internal/ratelimit"
	"github.com/thirdfuse/solarsite/internal/robots"
	"github.com/thirdfuse/solarsite/internal/router"
	"github.com/thirdfuse/solarsite/internal/sitemap"
)

// contactPath is the JSON endpoint the contact form posts to.
const contactPath = "/api/contact"

// maxBodyBytes caps contact submissions. Form payloads are small; anything
// bigger is not a real submission.
const maxBodyBytes = 1 << 20

// Server represents the HTTP server runtime.
type Server struct {
	cfg    *config.Config
	source *assets.Source
	logger *slog.Logger
	dev    bool

	router  *router.Router
	handler http.Handler

	pageMgr    *pages.Manager
	assetCache *assets.Cache
	content    *content.Store

	sitemap []byte
	robots  []byte

	sender  mail.Sender
	limiter ratelimit.Limiter

	pageCache  sync.Map // route path + locale -> *pageEntry
	errorCache sync.Map // key -> []byte
}

// pageEntry caches rendered HTML and metadata.
type pageEntry struct {
	Body         []byte
	ETag         string
	LastModified time.Time
}

// apiResponse is the JSON envelope for the contact endpoint.
type apiResponse struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// New constructs a server instance.
func New(cfg *config.Config, src *assets.Source, logger *slog.Logger, dev bool) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if src == nil {
		return nil, errors.New("asset source is nil")
	}

	pagesFS, err := src.Sub(assets.PagesDir)
	if err != nil {
		return nil, fmt.Errorf("pages fs: %w", err)
	}

	pageMgr := pages.New(pagesFS, nil)

	assetCache := assets.NewCache(src.FS, src.Manifest, src.GeneratedAt, src.ModTime)

	var store *content.Store
	if src.HasContent() {
		contentFS, err := src.Sub(assets.ContentDir)
		if err != nil {
			return nil, fmt.Errorf("content fs: %w", err)
		}
		store, err = content.New(contentFS, cfg.Site.DefaultLocale, cfg.Site.Locales)
		if err != nil {
			return nil, fmt.Errorf("content bundles: %w", err)
		}
	}

	routes := cfg.RoutesByPath()

	sitemapPayload, err := sitemap.Build(cfg.Site.BaseURL, routes, cfg.Site.Locales, cfg.Site.DefaultLocale, cfg.LoadedAt())
	if err != nil {
		return nil, fmt.Errorf("sitemap build: %w", err)
	}
	sitemapPayload = append([]byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"), sitemapPayload...)

	robotsPayload, err := robots.Build(cfg.Site.BaseURL, cfg.Site.RobotsPolicy)
	if err != nil {
		return nil, fmt.Errorf("robots build: %w", err)
	}
	robotsPayload = append(robotsPayload, '\n')

	var sender mail.Sender
	if cfg.Contact.UsesMailgun() {
		sender = mail.NewMailgun(cfg.Contact, cfg.Site.Name, nil)
	} else {
		sender = mail.NewSMTP(cfg.Contact, cfg.Site.Name)
	}

	srv := &Server{
		cfg:        cfg,
		source:     src,
		logger:     logger,
		dev:        dev,
		router:     router.New(),
		pageMgr:    pageMgr,
		assetCache: assetCache,
		content:    store,
		sitemap:    sitemapPayload,
		robots:     robotsPayload,
		sender:     sender,
		limiter:    ratelimit.NewWindow(ratelimit.DefaultMax, ratelimit.DefaultWindow),
	}

	srv.registerRoutes(routes)

	srv.handler = middleware.Chain(
		http.HandlerFunc(srv.router.ServeHTTP),
		middleware.Recover(logger, srv.recoverHandler),
		middleware.WithRequestID("X-Request-Id"),
		middleware.Logging(logger),
		middleware.Gzip(-1),
	)

	return srv, nil
}

// WithSender replaces the notification sender.
func (s *Server) WithSender(sender mail.Sender) {
	s.sender = sender
}

// WithLimiter replaces the submission rate limiter.
func (s *Server) WithLimiter(limiter ratelimit.Limiter) {
	s.limiter = limiter
}

func (s *Server) registerRoutes(routes []config.Route) {
	s.router.Handle("/sitemap.xml", http.HandlerFunc(s.serveSitemap))
	s.router.Handle("/robots.txt", http.HandlerFunc(s.serveRobots))
	s.router.Handle("/healthz", http.HandlerFunc(s.serveHealth))
	s.router.Handle(contactPath, http.HandlerFunc(s.handleContactSubmit))
	s.router.HandlePrefix("/static/", http.HandlerFunc(s.serveStatic))

	for _, route := range routes {
		route := route

		s.router.Handle(route.Path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.servePage(w, r, route)
		}))
	}

	s.router.NotFound(http.HandlerFunc(s.serveNotFound))
}

// Handler exposes the server handler stack.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, route config.Route) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	locale := s.cfg.Site.DefaultLocale
	if s.content != nil {
		locale = s.content.Negotiate(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
	}

	entry, err := s.loadPage(route, locale)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("render page", "path", route.Path, "locale", locale, "error", err)
		}
		s.serveError(w, r, http.StatusInternalServerError)
		return
	}

	if s.content != nil && len(s.cfg.Site.Locales) > 1 {
		w.Header().Add("Vary", "Accept-Language")
	}

	s.applyCacheHeaders(w, entry.ETag, entry.LastModified)
	s.applyHTMLHeaders(w)
	s.applyRouteHeaders(w, route.Path)

	if isNotModified(r, entry.ETag, entry.LastModified) {
		s.writeStatus(w, http.StatusNotModified)
		return
	}

	if r.Method == http.MethodHead {
		s.writeStatus(w, http.StatusOK)
		return
	}

	s.writeStatus(w, http.StatusOK)
	_, _ = w.Write(entry.Body)
}

// handleContactSubmit runs the submission pipeline: method check, rate
// limit, honeypot, validation, normalization, dispatch. Order matters; the
// honeypot fires before validation so bots never see field errors.
func (s *Server) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeAPI(w, http.StatusMethodNotAllowed, apiResponse{Message: "Method not allowed"})
		return
	}

	clientIP := middleware.ClientIP(r)
	if !s.limiter.Allow(clientIP) {
		s.writeAPI(w, http.StatusTooManyRequests, apiResponse{Message: "Too many requests. Please try again later."})
		return
	}

	var sub form.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&sub); err != nil {
		s.writeAPI(w, http.StatusBadRequest, apiResponse{Message: "Invalid request body"})
		return
	}

	if sub.IsBot() {
		// Success response so the honeypot stays hidden from the bot.
		s.writeAPI(w, http.StatusOK, apiResponse{OK: true, Message: "Message sent successfully"})
		return
	}

	if errs := form.Validate(sub); len(errs) > 0 {
		s.writeAPI(w, http.StatusBadRequest, apiResponse{Message: "Validation failed", Errors: errs})
		return
	}

	sub = form.Normalize(sub)

	if err := s.sender.Send(r.Context(), sub); err != nil {
		if s.logger != nil {
			s.logger.Error("contact dispatch", "ip", clientIP, "error", err)
		}
		s.writeAPI(w, http.StatusInternalServerError, apiResponse{Message: "Failed to send message. Please try again later or contact us directly."})
		return
	}

	s.writeAPI(w, http.StatusOK, apiResponse{OK: true, Message: "Your message has been sent successfully. We will get back to you within 24 hours."})
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	relPath := strings.TrimPrefix(r.URL.Path, "/")

	asset, err := s.assetCache.Get(relPath)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("static asset", "asset", relPath, "error", err)
		}
		s.serveNotFound(w, r)
		return
	}

	header := w.Header()
	header.Set("Content-Type", asset.MIME)
	header.Set("Cache-Control", "public, max-age=31536000, immutable")
	header.Set("Content-Length", fmt.Sprintf("%d", asset.Size))

	s.applyCacheHeaders(w, asset.ETag, asset.LastModified)

	if isNotModified(r, asset.ETag, asset.LastModified) {
		s.writeStatus(w, http.StatusNotModified)
		return
	}

	if r.Method == http.MethodHead {
		s.writeStatus(w, http.StatusOK)
		return
	}

	s.writeStatus(w, http.StatusOK)
	_, _ = w.Write(asset.Body)
}

func (s *Server) serveSitemap(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Content-Type", "application/xml")
	header.Set("Cache-Control", "public, max-age=300")
	header.Set("Content-Length", fmt.Sprintf("%d", len(s.sitemap)))

	if r.Method == http.MethodHead {
		s.writeStatus(w, http.StatusOK)
		return
	}

	s.writeStatus(w, http.StatusOK)
	_, _ = w.Write(s.sitemap)
}

func (s *Server) serveRobots(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Cache-Control", "public, max-age=300")
	header.Set("Content-Length", fmt.Sprintf("%d", len(s.robots)))

	if r.Method == http.MethodHead {
		s.writeStatus(w, http.StatusOK)
		return
	}

	s.writeStatus(w, http.StatusOK)
	_, _ = w.Write(s.robots)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	health := []byte(`{"status":"ok"}`)
	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store, max-age=0")
	header.Set("Content-Length", fmt.Sprintf("%d", len(health)))

	if r.Method == http.MethodHead {
		s.writeStatus(w, http.StatusOK)
		return
	}

	s.writeStatus(w, http.StatusOK)
	_, _ = w.Write(health)
}

func (s *Server) serveNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeErrorPage(w, r, "404.html", errorspkg.Default404, http.StatusNotFound)
}

func (s *Server) serveError(w http.ResponseWriter, r *http.Request, status int) {
	if status == http.StatusInternalServerError {
		s.writeErrorPage(w, r, "500.html", errorspkg.Default500, status)
		return
	}

	s.writeErrorPage(w, r, "404.html", errorspkg.Default404, status)
}

func (s *Server) recoverHandler(w http.ResponseWriter, r *http.Request, rec any) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeAPI(w, http.StatusInternalServerError, apiResponse{Message: "An unexpected error occurred. Please try again later."})
		return
	}
	s.serveError(w, r, http.StatusInternalServerError)
}

func (s *Server) writeErrorPage(w http.ResponseWriter, r *http.Request, pageName string, fallback func(pages.PageData) []byte, status int) {
	var body []byte
	if cached, ok := s.errorCache.Load(pageName); ok {
		body = cached.([]byte)
	} else if s.pageMgr.Exists(pageName) {
		data, err := s.pageMgr.Render(pageName, s.basePageData(status, r.URL.Path))
		if err == nil {
			body = data
			s.errorCache.Store(pageName, body)
		}
	}

	if body == nil {
		body = fallback(s.basePageData(status, r.URL.Path))
	}

	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) basePageData(status int, path string) pages.PageData {
	return pages.PageData{
		Title:      fmt.Sprintf("%d", status),
		SiteName:   s.cfg.Site.Name,
		BaseURL:    s.cfg.Site.BaseURL,
		NowRFC3339: s.cfg.LoadedAt().Format(time.RFC3339),
		RoutePath:  path,
	}
}

func (s *Server) loadPage(route config.Route, locale string) (*pageEntry, error) {
	cacheKey := route.Path + "\x00" + locale

	if entry, ok := s.pageCache.Load(cacheKey); ok {
		return entry.(*pageEntry), nil
	}

	data := pages.PageData{
		Title:      route.Title,
		SiteName:   s.cfg.Site.Name,
		BaseURL:    s.cfg.Site.BaseURL,
		NowRFC3339: s.cfg.LoadedAt().Format(time.RFC3339),
		RoutePath:  route.Path,
		Locale:     locale,
		Locales:    s.cfg.Site.Locales,
	}
	if s.content != nil {
		data.Content = s.content.Bundle(locale)
	}

	body, err := s.pageMgr.Render(route.Page, data)
	if err != nil {
		return nil, err
	}

	entry := &pageEntry{Body: body}

	if s.source.Manifest != nil {
		manifestPath := filepath.ToSlash(filepath.Join(assets.PagesDir, route.Page))
		if meta, ok := s.source.Manifest.Files[manifestPath]; ok {
			entry.ETag = ensureQuoted(meta.SHA256)
			if !meta.ModTime.IsZero() {
				entry.LastModified = meta.ModTime.UTC()
			}
		}
	}

	if entry.ETag == "" || locale != s.cfg.Site.DefaultLocale {
		entry.ETag = computeETag(body)
	}
	if entry.LastModified.IsZero() {
		if mt, err := s.source.ModTime(filepath.ToSlash(filepath.Join(assets.PagesDir, route.Page))); err == nil {
			entry.LastModified = mt.UTC()
		} else {
			entry.LastModified = s.source.GeneratedAt
		}
	}

	s.pageCache.Store(cacheKey, entry)

	return entry, nil
}

func (s *Server) applyCacheHeaders(w http.ResponseWriter, etag string, lastModified time.Time) {
	header := w.Header()
	if etag != "" {
		header.Set("ETag", etag)
	}
	if !lastModified.IsZero() {
		header.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
}

func (s *Server) applyHTMLHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	if header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", "public, max-age=300")
	}
}

func (s *Server) applyRouteHeaders(w http.ResponseWriter, path string) {
	header := w.Header()
	for key, val := range s.cfg.HeaderDirectives(path) {
		header.Set(key, val)
	}
}

func (s *Server) writeStatus(w http.ResponseWriter, status int) {
	if status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}

	if status == http.StatusOK {
		return
	}

	w.WriteHeader(status)
}

func (s *Server) writeAPI(w http.ResponseWriter, status int, payload apiResponse) {
	data, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"ok":false,"message":"An unexpected error occurred. Please try again later."}`)
	}

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store, max-age=0")

	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func ensureQuoted(hash string) string {
	if hash == "" {
		return ""
	}
	if strings.HasPrefix(hash, "\"") {
		return hash
	}
	return fmt.Sprintf("\"%s\"", hash)
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("\"%x\"", sum[:])
}

func isNotModified(r *http.Request, etag string, lastModified time.Time) bool {
	if etag != "" {
		if inm := r.Header.Get("If-None-Match"); inm != "" {
			for _, candidate := range strings.Split(inm, ",") {
				candidate = strings.TrimSpace(candidate)
				if candidate == etag || candidate == "*" {
					return true
				}
			}
		}
	}

	if !lastModified.IsZero() {
		if ims := r.Header.Get("If-Modified-Since"); ims != "" {
			if ts, err := time.Parse(http.TimeFormat, ims); err == nil {
				if !lastModified.After(ts) {
					return true
				}
			}
		}
	}

	return false
}
