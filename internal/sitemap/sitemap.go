// Package sitemap renders the sitemap.xml payload, including alternate
// hreflang links when the site serves more than one locale.
package sitemap

import (
	"encoding/xml"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/thirdfuse/solarsite/internal/config"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
const xhtmlNS = "http://www.w3.org/1999/xhtml"

// Build generates a sitemap XML document for the provided routes. When more
// than one locale is listed, every URL carries alternate links using the
// ?lang= selector the server understands; the default locale's alternate is
// the bare URL.
func Build(baseURL string, routes []config.Route, locales []string, defaultLocale string, generated time.Time) ([]byte, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	entries := make([]urlEntry, 0, len(routes))

	for _, rt := range routes {
		ref, err := url.Parse(rt.Path)
		if err != nil {
			return nil, err
		}

		loc := base.ResolveReference(ref)

		entry := urlEntry{
			Loc:        loc.String(),
			LastMod:    generated.UTC().Format(time.RFC3339),
			ChangeFreq: rt.ChangeFreq,
		}

		if rt.Priority > 0 {
			entry.Priority = strconv.FormatFloat(rt.Priority, 'f', 1, 64)
		}

		if len(locales) > 1 {
			for _, code := range locales {
				href := *loc
				if code != defaultLocale {
					q := href.Query()
					q.Set("lang", code)
					href.RawQuery = q.Encode()
				}
				entry.Alternates = append(entry.Alternates, alternate{
					Rel:      "alternate",
					Hreflang: code,
					Href:     href.String(),
				})
			}
		}

		entries = append(entries, entry)
	}

	doc := urlSet{
		XMLNS: sitemapNS,
		URLs:  entries,
	}

	if len(locales) > 1 {
		doc.XMLNSXHTML = xhtmlNS
	}

	return xml.MarshalIndent(doc, "", "  ")
}

// ErrBaseURLRequired indicates Build was called without a base URL.
var ErrBaseURLRequired = errors.New("base URL is required")

type urlSet struct {
	XMLName    xml.Name   `xml:"urlset"`
	XMLNS      string     `xml:"xmlns,attr"`
	XMLNSXHTML string     `xml:"xmlns:xhtml,attr,omitempty"`
	URLs       []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string      `xml:"loc"`
	LastMod    string      `xml:"lastmod,omitempty"`
	ChangeFreq string      `xml:"changefreq,omitempty"`
	Priority   string      `xml:"priority,omitempty"`
	Alternates []alternate `xml:"xhtml:link,omitempty"`
}

type alternate struct {
	Rel      string `xml:"rel,attr"`
	Hreflang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}
