package sitemap

import (
	"strings"
	"testing"
	"time"

	"github.com/thirdfuse/solarsite/internal/config"
)

func TestBuildSitemap(t *testing.T) {
	routes := []config.Route{
		{Path: "/", Priority: 1.0, ChangeFreq: "daily"},
		{Path: "/about"},
	}

	data, err := Build("https://example.com", routes, []string{"en"}, "en", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("build sitemap: %v", err)
	}

	xml := string(data)
	if !strings.Contains(xml, "https://example.com/about") {
		t.Fatalf("missing route URL in sitemap: %s", xml)
	}

	if !strings.Contains(xml, "2024-01-02T03:04:05Z") {
		t.Fatalf("missing lastmod timestamp: %s", xml)
	}

	if strings.Contains(xml, "hreflang") {
		t.Fatalf("single-locale sitemap must not carry alternates: %s", xml)
	}

	if !strings.Contains(xml, "<priority>1.0</priority>") {
		t.Fatalf("missing priority: %s", xml)
	}

	if !strings.Contains(xml, "<changefreq>daily</changefreq>") {
		t.Fatalf("missing changefreq: %s", xml)
	}
}

func TestBuildSitemapLocaleAlternates(t *testing.T) {
	routes := []config.Route{{Path: "/services"}}

	data, err := Build("https://example.com", routes, []string{"en", "hi", "ta"}, "en", time.Now())
	if err != nil {
		t.Fatalf("build sitemap: %v", err)
	}

	xml := string(data)

	for _, want := range []string{
		`hreflang="en"`,
		`hreflang="hi"`,
		`href="https://example.com/services?lang=hi"`,
		`href="https://example.com/services?lang=ta"`,
		`href="https://example.com/services"`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("missing %s in sitemap: %s", want, xml)
		}
	}

	if !strings.Contains(xml, "xmlns:xhtml") {
		t.Fatalf("missing xhtml namespace: %s", xml)
	}
}
