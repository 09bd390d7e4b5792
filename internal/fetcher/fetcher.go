// Package fetcher implements the cascading fetch tiers: plain HTTP, a
// Reader-API markdown proxy, a headless browser, a smart-interactive
// browser that clicks through dynamic content, and an AI-guided multi-page
// crawler. Every tier implements the same Fetch contract so the
// orchestrator can try them in sequence without caring which one answered.
//
// Grounded on internal/scraper/interface.go's Scraper contract and
// internal/scraper/engines/headed/browser.go's rod.Browser lifecycle,
// generalized from a single job-posting extraction call to the tiered
// cascade described by the fetch spec.
package fetcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// MinTextLength and MinHTMLLength are each tier's own "sufficient content"
// floor: a tier whose result falls under both returns nil so the
// orchestrator tries the next tier.
const (
	MinTextLength = 100
	MinHTMLLength = 500
)

// Fetcher is the contract every tier satisfies. A nil result with a nil
// error means "insufficient, try the next tier"; a non-nil error means a
// hard infrastructure failure that should not be retried with another tier.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error)
}

// userAgents is the fingerprint pool every network-facing tier rotates
// through, matching the desktop Chrome UA the teacher's browser launcher
// defaults to.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func fingerprintHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                randomUserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Cache-Control":             "no-cache",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
	}
}

// sufficient reports whether a single tier's own fetch produced enough
// content to bother returning at all, per the fixed MinTextLength/
// MinHTMLLength floor. This is a tier-internal gate distinct from the
// cascade's configurable IsValidContent threshold below.
func sufficient(text, html string) bool {
	return len(text) >= MinTextLength || len(html) >= MinHTMLLength
}

// IsValidContent applies the cascade's is_valid_content gate (spec.md §4.1
// step 2 / glossary "sufficient content"): text at least minContentLength
// bytes (the configurable MIN_CONTENT_LENGTH), or html at least
// MinHTMLLength bytes. minContentLength <= 0 falls back to MinTextLength.
func IsValidContent(text, html string, minContentLength int) bool {
	if minContentLength <= 0 {
		minContentLength = MinTextLength
	}
	return len(text) >= minContentLength || len(html) >= MinHTMLLength
}

func jitter(base time.Duration, pct float64) time.Duration {
	delta := float64(base) * pct * (rand.Float64()*2 - 1)
	return base + time.Duration(delta)
}
