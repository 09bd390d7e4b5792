package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestDiscoverLinksResolvesAndDedupes(t *testing.T) {
	html := `<a href="/a">A</a><a href="/a/">A again</a><a href="https://other.com/b">B</a>`
	links := DiscoverLinks(html, "https://example.com/start")
	assert.Len(t, links, 2)
}

func TestFilterLinksDropsVisitedAndExternal(t *testing.T) {
	cfg := models.CrawlConfig{FollowExternalLinks: false}
	visited := map[string]bool{"https://example.com/seen": true}
	links := []string{
		"https://example.com/seen",
		"https://example.com/new",
		"https://other.com/x",
		"mailto:a@b.com",
	}
	out := FilterLinks(links, cfg, visited, "https://example.com/current")
	assert.Equal(t, []string{"https://example.com/new"}, out)
}

func TestFilterLinksHonorsBlockedPatterns(t *testing.T) {
	cfg := models.CrawlConfig{BlockedPatterns: []string{`^/login`}}
	out := FilterLinks([]string{"https://example.com/login", "https://example.com/about"}, cfg, map[string]bool{}, "https://example.com/")
	assert.Equal(t, []string{"https://example.com/about"}, out)
}

func TestPrioritizeLinksFavorsShallowAndKeywordMatches(t *testing.T) {
	links := []string{
		"https://example.com/a/b/c/d",
		"https://example.com/careers",
	}
	out := PrioritizeLinks(links, "careers jobs")
	assert.Equal(t, "https://example.com/careers", out[0])
}

func TestDiscoverFrameURLsResolvesSrc(t *testing.T) {
	html := `<iframe src="/embed"></iframe>`
	out := DiscoverFrameURLs(html, "https://example.com/")
	assert.Equal(t, []string{"https://example.com/embed"}, out)
}

func TestDiscoverAjaxEndpointsMatchesFetchCalls(t *testing.T) {
	scripts := []string{`fetch('/api/data?year=2024')`}
	out := DiscoverAjaxEndpoints("https://example.com/", scripts, nil)
	assert.Equal(t, []string{"https://example.com/api/data?year=2024"}, out)
}
