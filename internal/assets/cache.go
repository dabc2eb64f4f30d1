package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ManifestFilename is the index the packer writes at the root of the
// packed tree, covering every file it emits: the page templates, the
// static assets they reference, the per-locale content bundles and the
// packed configuration.
const ManifestFilename = "manifest.json"

// ConfigFilename is the packed copy of the site configuration, written by
// the packer next to the manifest so the binary can boot without a config
// file on disk.
const ConfigFilename = "config.json"

// ManifestEntry records the checksum and metadata the server needs to
// answer conditional requests for one packed file.
type ManifestEntry struct {
	Path    string    `json:"path"`
	SHA256  string    `json:"sha256"`
	Size    int64     `json:"size"`
	MIME    string    `json:"mime"`
	ModTime time.Time `json:"mod_time"`
}

// Manifest maps packed paths (pages/home.html, static/app.css,
// content/hi/site.json, config.json) to their entries. The SHA-256 sums
// become strong ETags; mod times feed Last-Modified.
type Manifest struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Files       map[string]ManifestEntry `json:"files"`
}

// LoadManifest reads the manifest from the root of fsys. A disk source may
// legitimately have none; callers treat that as an empty manifest.
func LoadManifest(fsys fs.FS) (*Manifest, error) {
	if fsys == nil {
		return nil, errors.New("nil filesystem")
	}

	data, err := fs.ReadFile(fsys, ManifestFilename)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if manifest.Files == nil {
		manifest.Files = make(map[string]ManifestEntry)
	}

	return &manifest, nil
}

// Cache holds packed files in memory with their response metadata. The
// server keeps one per source; a file is read once and then served from
// the cache for the process lifetime, manifest entries supply the ETag and
// timestamps so the embedded and disk sources answer conditionals the
// same way.
type Cache struct {
	fs          fs.FS
	manifest    *Manifest
	defaultTime time.Time
	modTimeFn   func(string) (time.Time, error)
	files       sync.Map // string -> *CachedAsset
}

// CachedAsset is one packed file ready to serve: body plus the headers the
// conditional-request path needs.
type CachedAsset struct {
	Path         string
	Body         []byte
	ETag         string
	LastModified time.Time
	MIME         string
	Size         int64
}

// NewCache builds a Cache over fsys. manifest may be nil (disk sources
// during development); defaultTime stamps files with no better mod time,
// and modTime, when set, asks the source for one.
func NewCache(fsys fs.FS, manifest *Manifest, defaultTime time.Time, modTime func(string) (time.Time, error)) *Cache {
	return &Cache{
		fs:          fsys,
		manifest:    manifest,
		defaultTime: defaultTime,
		modTimeFn:   modTime,
	}
}

// Get returns the cached file, reading and caching it on first use. The
// manifest entry wins for ETag, mod time and MIME; anything it does not
// cover is computed from the bytes.
func (c *Cache) Get(path string) (*CachedAsset, error) {
	if c == nil {
		return nil, errors.New("cache is nil")
	}

	if path == "" {
		return nil, errors.New("path is empty")
	}

	if v, ok := c.files.Load(path); ok {
		return v.(*CachedAsset), nil
	}

	body, err := fs.ReadFile(c.fs, path)
	if err != nil {
		return nil, err
	}

	asset := &CachedAsset{
		Path: path,
		Body: body,
		Size: int64(len(body)),
	}
	c.fillFromManifest(asset)

	if asset.ETag == "" {
		asset.ETag = strongETag(body)
	}

	if asset.LastModified.IsZero() && c.modTimeFn != nil {
		if mt, err := c.modTimeFn(path); err == nil {
			asset.LastModified = mt.UTC()
		}
	}

	if asset.LastModified.IsZero() {
		asset.LastModified = c.defaultTime
	}

	if asset.MIME == "" {
		asset.MIME = detectMIME(path, body)
	}

	c.files.Store(path, asset)

	return asset, nil
}

// Invalidate drops a single file so the next Get re-reads it. The dev
// server calls this when a watched source file changes.
func (c *Cache) Invalidate(path string) {
	if c == nil || path == "" {
		return
	}
	c.files.Delete(path)
}

func (c *Cache) fillFromManifest(asset *CachedAsset) {
	if c.manifest == nil {
		return
	}

	entry, ok := c.manifest.Files[asset.Path]
	if !ok {
		return
	}

	if entry.SHA256 != "" {
		asset.ETag = entry.SHA256
		if !strings.HasPrefix(asset.ETag, "\"") {
			asset.ETag = "\"" + asset.ETag + "\""
		}
	}

	asset.LastModified = entry.ModTime
	if asset.LastModified.IsZero() {
		asset.LastModified = c.manifest.GeneratedAt
	}
	asset.LastModified = asset.LastModified.UTC()

	asset.MIME = entry.MIME
}

func strongETag(body []byte) string {
	sum := sha256.Sum256(body)
	return "\"" + hex.EncodeToString(sum[:]) + "\""
}

// detectMIME resolves a content type by extension first, sniffing the
// bytes only as a last resort. The extension table in mime_types.go keeps
// the answer stable across host OS mime databases.
func detectMIME(path string, body []byte) string {
	ext := strings.ToLower(filepath.Ext(path))

	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}

	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".xml":
		return "application/xml"
	}

	if sniffed := http.DetectContentType(body); sniffed != "" && sniffed != "application/octet-stream" {
		return sniffed
	}

	return "application/octet-stream"
}
