package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/aeodev/aiscrape/internal/scraper/captcha"
	"github.com/aeodev/aiscrape/internal/scraper/engines/headed"
	"github.com/aeodev/aiscrape/pkg/models"
)

// ClickDecider is the minimal capability the smart-interactive tier needs
// from an LLM: given the page and a list of clickable candidates, decide
// which ones are worth clicking. Defined here (not imported from
// internal/llmclient) so this package never depends upward on the concrete
// LLM client -- the same pattern internal/validator.SufficiencyChecker and
// internal/extraction.ModelCaller use.
type ClickDecider interface {
	DecideClicks(ctx context.Context, question, pagePreview string, candidates []ClickCandidate) ([]int, error)
}

// ClickCandidate is one DOM element the smart tier considered clicking.
type ClickCandidate struct {
	Selector         string
	Text             string
	Tag              string
	LikelyDataTrigger bool
}

// NetworkRecord is one captured XHR/fetch response during interaction.
type NetworkRecord struct {
	URL    string
	Method string
	Body   string
}

// SmartConfig configures the smart-interactive tier.
type SmartConfig struct {
	Headless         HeadlessConfig
	MaxCandidates    int
	MaxAutoClicks    int
	ClickSettleDelay time.Duration
}

// DefaultSmartConfig matches the fetch spec's defaults for this tier.
func DefaultSmartConfig() SmartConfig {
	return SmartConfig{
		Headless:         DefaultHeadlessConfig(),
		MaxCandidates:    10,
		MaxAutoClicks:    5,
		ClickSettleDelay: 1500 * time.Millisecond,
	}
}

// antiDetectionScript neutralizes the automation fingerprints sites probe
// for, beyond what the stealth page already overrides in BrowserInstance.
const antiDetectionScript = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
}`

// SmartFetcher extends the headless tier with network capture, DOM
// interaction discovery, and AI-guided clicking -- grounded on
// internal/scraper/engines/headed/browser.go's stealth/anti-automation
// setup (createStealthPage already injects the webdriver/plugins overrides
// this tier repeats defensively before each interactive session).
type SmartFetcher struct {
	cfg     SmartConfig
	manager *headed.BrowserManager
	decider ClickDecider            // optional; nil falls back to the first MaxAutoClicks triggers
	solver  captcha.CaptchaSolver   // optional; nil skips challenge solving entirely
}

// NewSmartFetcher wraps an already-constructed BrowserManager, an optional
// ClickDecider (pass nil to always use the heuristic fallback), and an
// optional CaptchaSolver (pass nil to skip challenge solving).
func NewSmartFetcher(manager *headed.BrowserManager, decider ClickDecider, solver captcha.CaptchaSolver, cfg SmartConfig) *SmartFetcher {
	if cfg.MaxCandidates <= 0 {
		cfg = DefaultSmartConfig()
	}
	return &SmartFetcher{cfg: cfg, manager: manager, decider: decider, solver: solver}
}

func (f *SmartFetcher) Name() string { return string(models.ScraperSmart) }

var ajaxURLPattern = regexp.MustCompile(`(?i)ajax|/api/|\.json`)

func (f *SmartFetcher) Fetch(ctx context.Context, rawURL string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	if f.manager == nil {
		return nil, nil
	}
	models.EmitEvent(emit, models.ActionEvent{JobID: opts.JobID, Type: models.ActionNavigation, Message: "fetching via smart-interactive browser", Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Headless.OverallTimeout+5*time.Second)
	defer cancel()

	instance, err := f.manager.GetBrowser(ctx)
	if err != nil {
		return nil, nil
	}
	defer instance.Release()

	_ = rod.Try(func() { instance.Page.MustEval(antiDetectionScript) })
	randomizeViewport(instance.Page)

	records := f.captureNetwork(instance.Page)

	if err := instance.Navigate(ctx, rawURL, f.cfg.Headless.NavigationTimeout); err != nil {
		return nil, nil
	}
	time.Sleep(1 * time.Second)

	html, err := instance.GetPageHTML()
	if err != nil || html == "" {
		return nil, nil
	}

	if f.solver != nil {
		if solvedHTML := f.solveChallenge(ctx, instance, rawURL, html); solvedHTML != "" {
			html = solvedHTML
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}
	text := strings.TrimSpace(doc.Text())

	candidates := discoverClickCandidates(doc, f.cfg.MaxCandidates)
	chosen := f.decideClicks(ctx, opts.TaskDescription, text, candidates)

	var appended []string
	for _, idx := range chosen {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		before := text
		if err := clickAndWait(instance.Page, candidates[idx], f.cfg.ClickSettleDelay); err != nil {
			continue
		}
		after, err := instance.GetPageHTML()
		if err != nil {
			continue
		}
		adoc, err := goquery.NewDocumentFromReader(strings.NewReader(after))
		if err != nil {
			continue
		}
		newText := strings.TrimSpace(adoc.Text())
		if diff := contentDiff(before, newText); diff != "" {
			appended = append(appended, fmt.Sprintf("[interaction: %s]\n%s", candidates[idx].Text, diff))
		}
		html = after
		text = newText
	}

	for _, a := range appended {
		text += "\n" + a
	}
	for _, rec := range records.snapshot() {
		b, _ := json.MarshalIndent(rec, "", "  ")
		text += "\n" + string(b)
		html += "\n<!-- network: " + rec.URL + " -->"
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")

	if !sufficient(text, html) {
		return nil, nil
	}

	return &models.FetchResult{
		HTML:            html,
		Text:            text,
		FinalURL:        rawURL,
		PageTitle:       title,
		PageDescription: description,
		RequestCount:    1 + len(chosen),
	}, nil
}

var recaptchaSiteKeyPattern = regexp.MustCompile(`data-sitekey=["']([^"']+)["']`)
var turnstileSiteKeyPattern = regexp.MustCompile(`cf-turnstile["'\s\S]{0,80}?data-sitekey=["']([^"']+)["']`)

// solveChallenge detects a reCAPTCHA or Turnstile widget in html, solves it
// via the configured CaptchaSolver, injects the solution back into the
// page, and returns the post-injection HTML (empty string if no challenge
// was found or solving failed).
func (f *SmartFetcher) solveChallenge(ctx context.Context, instance *headed.BrowserInstance, pageURL, html string) string {
	if m := turnstileSiteKeyPattern.FindStringSubmatch(html); len(m) == 2 {
		token, err := f.solver.SolveTurnstile(ctx, m[1], pageURL)
		if err != nil || token == "" {
			return ""
		}
		if err := instance.InjectTurnstileSolution(token); err != nil {
			return ""
		}
	} else if m := recaptchaSiteKeyPattern.FindStringSubmatch(html); len(m) == 2 {
		token, err := f.solver.SolveRecaptcha(ctx, m[1], pageURL)
		if err != nil || token == "" {
			return ""
		}
		if err := instance.InjectCaptchaSolution(token); err != nil {
			return ""
		}
	} else {
		return ""
	}

	time.Sleep(500 * time.Millisecond)
	solved, err := instance.GetPageHTML()
	if err != nil {
		return ""
	}
	return solved
}

func (f *SmartFetcher) decideClicks(ctx context.Context, task, pagePreview string, candidates []ClickCandidate) []int {
	if f.decider != nil {
		if indices, err := f.decider.DecideClicks(ctx, task, preview(pagePreview, 2000), candidates); err == nil {
			return indices
		}
	}
	var fallback []int
	for i, c := range candidates {
		if c.LikelyDataTrigger {
			fallback = append(fallback, i)
		}
		if len(fallback) >= f.cfg.MaxAutoClicks {
			break
		}
	}
	return fallback
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var yearLike = regexp.MustCompile(`^\d{4}$`)
var shortDigits = regexp.MustCompile(`^\d{1,3}$`)
var viewWord = regexp.MustCompile(`(?i)view`)

// discoverClickCandidates finds anchors with empty/"#" hrefs, buttons,
// role=button/onclick/data-year/data-id elements, and tab-like roles.
func discoverClickCandidates(doc *goquery.Document, max int) []ClickCandidate {
	var out []ClickCandidate
	add := func(sel *goquery.Selection, tag string) {
		if len(out) >= max {
			return
		}
		text := strings.TrimSpace(sel.Text())
		dataYear, _ := sel.Attr("data-year")
		dataID, _ := sel.Attr("data-id")
		likely := yearLike.MatchString(text) || shortDigits.MatchString(text) || viewWord.MatchString(text) || dataYear != "" || dataID != ""
		out = append(out, ClickCandidate{
			Selector:          selectorFor(sel, tag),
			Text:              text,
			Tag:               tag,
			LikelyDataTrigger: likely,
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || href == "#" {
			add(s, "a")
		}
	})
	doc.Find("button, [role=button], [onclick], [data-year], [data-id], [role=tab]").Each(func(_ int, s *goquery.Selection) {
		add(s, strings.ToLower(goquery.NodeName(s)))
	})
	return out
}

func selectorFor(s *goquery.Selection, tag string) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	text := strings.TrimSpace(s.Text())
	return fmt.Sprintf("%s:has-text(%q)", tag, text)
}

func clickAndWait(page *rod.Page, c ClickCandidate, settle time.Duration) error {
	return rod.Try(func() {
		el := page.MustElementR(c.Tag, c.Text)
		el.MustClick()
		time.Sleep(settle)
	})
}

func contentDiff(before, after string) string {
	if len(after) <= len(before) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(after, before))
}

// networkCapture accumulates NetworkRecord entries from hijacked requests.
type networkCapture struct {
	mu      sync.Mutex
	records []NetworkRecord
}

func (n *networkCapture) snapshot() []NetworkRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NetworkRecord, len(n.records))
	copy(out, n.records)
	return out
}

// captureNetwork hijacks XHR/fetch responses whose content looks like JSON
// or whose URL matches ajax|api, recording {url, method, body}.
func (f *SmartFetcher) captureNetwork(page *rod.Page) *networkCapture {
	capture := &networkCapture{}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		url := h.Request.URL().String()
		method := h.Request.Method()
		if err := h.LoadResponse(http.DefaultClient, true); err != nil {
			return
		}
		contentType := h.Response.Headers().Get("Content-Type")
		if strings.Contains(contentType, "json") || ajaxURLPattern.MatchString(url) {
			capture.mu.Lock()
			capture.records = append(capture.records, NetworkRecord{URL: url, Method: method, Body: h.Response.Body()})
			capture.mu.Unlock()
		}
	})
	go router.Run()
	return capture
}
