package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aeodev/aiscrape/internal/crawler"
	"github.com/aeodev/aiscrape/pkg/models"
)

// PageAnalyzer is the AI capability the crawler tier calls once per visited
// page needing guidance: given the page text, unvisited link candidates,
// and discovered AJAX triggers, decide whether the page has relevant data
// and which links to follow next. Defined locally so this package stays
// independent of the concrete LLM client.
type PageAnalyzer interface {
	AnalyzePage(ctx context.Context, task, pageText string, links []string, ajaxTriggers []string) (AgentPageAnalysis, error)
}

// AgentPageAnalysis is PageAnalyzer's decoded response shape.
type AgentPageAnalysis struct {
	HasRelevantData bool
	ExtractedData   []string
	LinksToFollow   []int // indices into the links slice passed to AnalyzePage
	Summary         string
}

// AgentConfig configures the AI-Agent crawler tier.
type AgentConfig struct {
	FetchTimeout      time.Duration
	DelayBetweenPages time.Duration
}

// DefaultAgentConfig matches the fetch spec's per-page 5s ceiling.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{FetchTimeout: 5 * time.Second}
}

// AgentFetcher crawls multiple pages guided by internal/crawler's
// primitives (duplicate detection, priority queue, link discovery,
// statistics) plus an optional PageAnalyzer for AI-guided navigation.
type AgentFetcher struct {
	cfg      AgentConfig
	crawlCfg models.CrawlConfig
	http     *HTTPFetcher
	analyzer PageAnalyzer
}

// NewAgentFetcher builds an AgentFetcher. http is used for the tier's plain
// per-page GETs (no browser involved); analyzer may be nil, in which case
// the crawl follows prioritized links without AI guidance.
func NewAgentFetcher(http *HTTPFetcher, analyzer PageAnalyzer, crawlCfg models.CrawlConfig, cfg AgentConfig) *AgentFetcher {
	if cfg.FetchTimeout <= 0 {
		cfg = DefaultAgentConfig()
	}
	if crawlCfg.MaxPages <= 0 {
		crawlCfg.MaxPages = 20
	}
	if crawlCfg.MaxDepth <= 0 {
		crawlCfg.MaxDepth = 3
	}
	if crawlCfg.MaxAjaxEndpoints <= 0 {
		crawlCfg.MaxAjaxEndpoints = 10
	}
	return &AgentFetcher{cfg: cfg, crawlCfg: crawlCfg, http: http, analyzer: analyzer}
}

func (f *AgentFetcher) Name() string { return string(models.ScraperAiAgent) }

var ajaxTriggerPattern = regexp.MustCompile(`<[a-z]+[^>]*(href="#"|data-[a-z-]+|onclick)[^>]*>\s*([^<]{1,30})\s*<`)

func (f *AgentFetcher) Fetch(ctx context.Context, startURL string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	if f.http == nil {
		return nil, nil
	}
	models.EmitEvent(emit, models.ActionEvent{JobID: opts.JobID, Type: models.ActionNavigation, Message: "starting AI-agent crawl", Timestamp: time.Now()})

	norm, err := crawler.NormalizeURL(startURL)
	if err != nil {
		return nil, nil
	}

	queue := crawler.NewPriorityQueue()
	dup := crawler.NewDuplicateDetector()
	stats := crawler.NewStatsTracker(time.Now())
	ajaxFetched := 0

	dup.AddURL(norm)
	queue.Enqueue(&models.CrawlPage{URL: norm, Depth: 0, Priority: 100, DiscoveredAt: time.Now(), Status: models.CrawlPagePending})

	var htmlParts, textParts []string
	var extracted []string
	visited := map[string]bool{}
	pagesVisited := 0

	for !queue.IsEmpty() && pagesVisited < f.crawlCfg.MaxPages {
		page := queue.Dequeue()
		if page.Depth > f.crawlCfg.MaxDepth {
			stats.RecordSkipped()
			continue
		}

		pageStart := time.Now()
		pctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
		result, err := f.http.Fetch(pctx, page.URL, models.FetchOptions{JobID: opts.JobID}, nil)
		cancel()
		if err != nil || result == nil {
			stats.RecordFailed()
			continue
		}

		visited[page.URL] = true
		pagesVisited++
		stats.RecordVisit(page.Depth, time.Since(pageStart))

		htmlParts = append(htmlParts, fmt.Sprintf("<!-- PAGE %s (depth %d) -->\n%s", page.URL, page.Depth, result.HTML))
		textParts = append(textParts, result.Text)

		links := crawler.DiscoverLinks(result.HTML, page.URL)
		links = crawler.FilterLinks(links, f.crawlCfg, visited, page.URL)
		links = crawler.PrioritizeLinks(links, opts.TaskDescription)
		stats.RecordLinksDiscovered(len(links))

		for i, link := range links {
			if dup.AddURL(link) {
				queue.Enqueue(&models.CrawlPage{
					URL: link, Depth: page.Depth + 1, Priority: len(links) - i,
					ParentURL: page.URL, DiscoveredAt: time.Now(), Status: models.CrawlPagePending,
				})
			} else {
				stats.RecordDuplicate()
			}
		}

		ajaxTriggers := findAjaxTriggers(result.HTML)
		if ajaxFetched < f.crawlCfg.MaxAjaxEndpoints {
			endpoints := crawler.DiscoverAjaxEndpoints(page.URL, nil, ajaxTriggers)
			for _, ep := range endpoints {
				if ajaxFetched >= f.crawlCfg.MaxAjaxEndpoints {
					break
				}
				actx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
				ajaxResult, err := f.http.Fetch(actx, ep, models.FetchOptions{JobID: opts.JobID}, nil)
				cancel()
				ajaxFetched++
				if err == nil && ajaxResult != nil {
					stats.RecordAjaxFetched()
					extracted = append(extracted, ajaxResult.Text)
				}
			}
		}

		for _, frameURL := range crawler.DiscoverFrameURLs(result.HTML, page.URL) {
			if dup.AddURL(frameURL) {
				queue.Enqueue(&models.CrawlPage{
					URL: frameURL, Depth: page.Depth + 1, Priority: 50,
					ParentURL: page.URL, DiscoveredAt: time.Now(), Status: models.CrawlPagePending,
				})
			}
		}

		if f.analyzer != nil && (len(extracted) == 0 || page.Depth == 0) {
			analysis, err := f.analyzer.AnalyzePage(ctx, opts.TaskDescription, result.Text, links, ajaxTriggers)
			if err == nil {
				extracted = append(extracted, analysis.ExtractedData...)
				for _, idx := range analysis.LinksToFollow {
					if idx < 0 || idx >= len(links) {
						continue
					}
					if dup.AddURL(links[idx]) {
						queue.Enqueue(&models.CrawlPage{
							URL: links[idx], Depth: page.Depth + 1, Priority: 200,
							ParentURL: page.URL, DiscoveredAt: time.Now(), Status: models.CrawlPagePending,
						})
					}
				}
			}
		}

		if f.crawlCfg.DelayBetweenRequests > 0 {
			time.Sleep(f.crawlCfg.DelayBetweenRequests)
		}
	}

	snapshot := stats.Snapshot(time.Now())
	compositeHTML := strings.Join(htmlParts, "\n")
	compositeText := strings.Join(textParts, "\n")
	for _, e := range extracted {
		compositeText += "\n" + e
	}
	summary := fmt.Sprintf("# Crawl summary\n\nPages visited: %d\nFailed: %d\nDuplicates: %d\nExtracted items: %d\n",
		snapshot.PagesVisited, snapshot.Failed, snapshot.Duplicates, len(extracted))

	if !sufficient(compositeText, compositeHTML) {
		return nil, nil
	}

	return &models.FetchResult{
		HTML:         compositeHTML,
		Markdown:     summary,
		Text:         compositeText,
		FinalURL:     norm,
		RequestCount: pagesVisited + ajaxFetched,
	}, nil
}

func findAjaxTriggers(html string) []string {
	var triggers []string
	for _, m := range ajaxTriggerPattern.FindAllStringSubmatch(html, -1) {
		triggers = append(triggers, strings.TrimSpace(m[2]))
	}
	return triggers
}
