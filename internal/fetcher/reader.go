package fetcher

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mendableai/firecrawl-go"

	"github.com/aeodev/aiscrape/internal/retry"
	"github.com/aeodev/aiscrape/pkg/models"
)

// ReaderConfig configures the Reader-API tier.
type ReaderConfig struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultReaderConfig matches the fetch spec's 15s budget for this tier.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{Timeout: 15 * time.Second, MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// ReaderFetcher proxies through a Markdown-rendering reader API (the
// teacher's Firecrawl SDK), deriving title/description/text the way the
// fetch spec describes rather than trusting whatever fields the SDK fills
// in directly.
//
// Grounded on internal/scraper/engines/firecrawl/firecrawl.go's
// firecrawl.FirecrawlApp.ScrapeURL call; its retry loop slept
// time.Duration(attempt)*time.Second (linear, mislabeled as backoff in its
// logs) -- this tier retries through internal/retry instead, which is
// genuinely exponential.
type ReaderFetcher struct {
	cfg ReaderConfig
	app *firecrawl.FirecrawlApp
}

// NewReaderFetcher builds a ReaderFetcher around an already-constructed
// firecrawl.FirecrawlApp (apiKey/apiURL wiring lives in the caller's config).
func NewReaderFetcher(app *firecrawl.FirecrawlApp, cfg ReaderConfig) *ReaderFetcher {
	if cfg.Timeout <= 0 {
		cfg = DefaultReaderConfig()
	}
	return &ReaderFetcher{cfg: cfg, app: app}
}

func (f *ReaderFetcher) Name() string { return string(models.ScraperReader) }

var readerErrorMarker = regexp.MustCompile(`(?i)error:|failed to`)

func (f *ReaderFetcher) Fetch(ctx context.Context, rawURL string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	if f.app == nil {
		return nil, nil
	}
	models.EmitEvent(emit, models.ActionEvent{JobID: opts.JobID, Type: models.ActionNavigation, Message: "fetching via reader API", Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var markdown string
	policy := retry.Policy{BaseDelay: f.cfg.BaseDelay, MaxRetries: f.cfg.MaxRetries, MaxDelay: f.cfg.Timeout}
	err := retry.Do(ctx, policy, nil, func(ctx context.Context, attempt int) error {
		doc, err := f.app.ScrapeURL(rawURL, &firecrawl.ScrapeParams{Formats: []string{"markdown"}})
		if err != nil {
			return err
		}
		if doc == nil || doc.Markdown == "" {
			return errEmptyReaderResponse
		}
		markdown = doc.Markdown
		return nil
	})
	if err != nil {
		return nil, nil // soft failure: cascade to the next tier
	}

	if len(markdown) < MinTextLength || readerErrorMarker.MatchString(markdown[:min(len(markdown), 200)]) {
		return nil, nil
	}

	title := firstHeading(markdown)
	description := firstParagraph(markdown)
	text := stripMarkdownDecorations(markdown)

	return &models.FetchResult{
		HTML:            "",
		Markdown:        markdown,
		Text:            text,
		FinalURL:        rawURL,
		PageTitle:       title,
		PageDescription: description,
		RequestCount:    1,
	}, nil
}

var errEmptyReaderResponse = readerEmptyError{}

type readerEmptyError struct{}

func (readerEmptyError) Error() string { return "reader API returned no markdown" }

var headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)

func firstHeading(markdown string) string {
	m := headingPattern.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstParagraph(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

var markdownDecoration = regexp.MustCompile(`[*_#>` + "`" + `]`)

func stripMarkdownDecorations(markdown string) string {
	text := markdownDecoration.ReplaceAllString(markdown, "")
	return strings.TrimSpace(text)
}
