// Package content loads locale-keyed JSON content bundles and negotiates
// which locale a request should see. Bundles are plain data consumed by the
// page templates; the server never interprets their structure.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
)

// bundleFile is the per-locale content document, e.g. content/en/site.json.
const bundleFile = "site.json"

// Bundle holds the parsed content for one locale.
type Bundle map[string]any

// Store resolves content bundles by locale with fallback to the default.
type Store struct {
	defaultLocale string
	locales       []string
	bundles       map[string]Bundle
	matcher       language.Matcher
	matchCodes    []string // locale codes in matcher order
}

// New loads bundles for every listed locale from fsys, which must contain
// one directory per locale. The default locale's bundle is required; other
// locales silently fall back to it when their bundle is missing, so a
// partially translated site still serves every page.
func New(fsys fs.FS, defaultLocale string, locales []string) (*Store, error) {
	if fsys == nil {
		return nil, errors.New("content filesystem is nil")
	}
	if defaultLocale == "" {
		return nil, errors.New("default locale is required")
	}

	s := &Store{
		defaultLocale: defaultLocale,
		bundles:       make(map[string]Bundle, len(locales)),
	}

	for _, loc := range locales {
		loc = strings.ToLower(strings.TrimSpace(loc))
		if loc == "" {
			continue
		}

		bundle, err := loadBundle(fsys, loc)
		if err != nil {
			if loc == defaultLocale {
				return nil, fmt.Errorf("load %s content: %w", loc, err)
			}
			continue
		}

		s.bundles[loc] = bundle
		s.locales = append(s.locales, loc)
	}

	if _, ok := s.bundles[defaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q has no content bundle", defaultLocale)
	}

	// The matcher prefers earlier tags, so the default locale leads.
	s.matchCodes = append(s.matchCodes, defaultLocale)
	for _, loc := range s.locales {
		if loc != defaultLocale {
			s.matchCodes = append(s.matchCodes, loc)
		}
	}

	tags := make([]language.Tag, 0, len(s.matchCodes))
	for _, code := range s.matchCodes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("locale %q: %w", code, err)
		}
		tags = append(tags, tag)
	}
	s.matcher = language.NewMatcher(tags)

	return s, nil
}

func loadBundle(fsys fs.FS, locale string) (Bundle, error) {
	data, err := fs.ReadFile(fsys, path.Join(locale, bundleFile))
	if err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	return bundle, nil
}

// DefaultLocale returns the fallback locale code.
func (s *Store) DefaultLocale() string {
	if s == nil {
		return ""
	}
	return s.defaultLocale
}

// Locales lists the locale codes with a loaded bundle.
func (s *Store) Locales() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.locales))
	copy(out, s.locales)
	return out
}

// Bundle returns the content for the requested locale, falling back to the
// default locale when the request names an unknown one.
func (s *Store) Bundle(locale string) Bundle {
	if s == nil {
		return nil
	}
	if b, ok := s.bundles[strings.ToLower(locale)]; ok {
		return b
	}
	return s.bundles[s.defaultLocale]
}

// Negotiate picks a locale for a request. An explicit query value wins when
// it names a loaded locale; otherwise the Accept-Language header is matched
// against the available set, and the default locale is the last resort.
func (s *Store) Negotiate(query, acceptLanguage string) string {
	if s == nil {
		return ""
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if _, ok := s.bundles[query]; ok {
		return query
	}

	if acceptLanguage != "" {
		_, idx := language.MatchStrings(s.matcher, acceptLanguage)
		if idx >= 0 && idx < len(s.matchCodes) {
			return s.matchCodes[idx]
		}
	}

	return s.defaultLocale
}
