package fetcher

import (
	"context"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/aeodev/aiscrape/internal/scraper/engines/headed"
	"github.com/aeodev/aiscrape/pkg/models"
)

// HeadlessConfig configures the headless browser tier.
type HeadlessConfig struct {
	NavigationTimeout time.Duration
	OverallTimeout    time.Duration
	FrameTimeout      time.Duration
	BlockResources    bool
}

// DefaultHeadlessConfig matches the fetch spec's 15s ceiling for this tier.
func DefaultHeadlessConfig() HeadlessConfig {
	return HeadlessConfig{
		NavigationTimeout: 10 * time.Second,
		OverallTimeout:    15 * time.Second,
		FrameTimeout:      5 * time.Second,
		BlockResources:    true,
	}
}

// blockedResourceTypes are skipped when BlockResources is set, to cut page
// weight on sites whose content doesn't depend on them.
var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
	proto.NetworkResourceTypeStylesheet: true,
}

var trackerURLPattern = `doubleclick|googlesyndication|google-analytics|facebook.com/tr|hotjar|segment.io`

// HeadlessFetcher drives a real browser via rod, grounded on
// internal/scraper/engines/headed/browser.go's BrowserManager/BrowserInstance
// (stealth page creation, viewport, fingerprint headers already live there).
type HeadlessFetcher struct {
	cfg     HeadlessConfig
	manager *headed.BrowserManager
}

// NewHeadlessFetcher wraps an already-constructed BrowserManager.
func NewHeadlessFetcher(manager *headed.BrowserManager, cfg HeadlessConfig) *HeadlessFetcher {
	if cfg.OverallTimeout <= 0 {
		cfg = DefaultHeadlessConfig()
	}
	return &HeadlessFetcher{cfg: cfg, manager: manager}
}

func (f *HeadlessFetcher) Name() string { return string(models.ScraperHeadless) }

func (f *HeadlessFetcher) Fetch(ctx context.Context, rawURL string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	if f.manager == nil {
		return nil, nil
	}
	models.EmitEvent(emit, models.ActionEvent{JobID: opts.JobID, Type: models.ActionNavigation, Message: "fetching via headless browser", Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(ctx, f.cfg.OverallTimeout)
	defer cancel()

	instance, err := f.manager.GetBrowser(ctx)
	if err != nil {
		return nil, nil // soft failure: cascade to the next tier
	}
	defer instance.Release()

	if f.cfg.BlockResources || opts.BlockResources {
		blockResources(instance.Page)
	}
	randomizeViewport(instance.Page)

	if err := instance.Navigate(ctx, rawURL, f.cfg.NavigationTimeout); err != nil {
		return nil, nil
	}
	time.Sleep(1 * time.Second) // grace period after domcontentloaded for late script content

	html, err := instance.GetPageHTML()
	if err != nil || html == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	text := strings.TrimSpace(doc.Text())

	frameTexts := f.collectFrames(instance.Page)
	for _, t := range frameTexts {
		text += "\n" + t
	}

	converter := htmlmd.NewConverter(hostOf(rawURL), true, nil)
	markdown, _ := converter.ConvertString(html)

	finalURL := rawURL
	if info, err := instance.Page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	var screenshots []string
	if opts.Screenshots {
		if shot, err := captureScreenshot(instance.Page); err == nil {
			screenshots = append(screenshots, shot)
		}
	}

	if !sufficient(text, html) {
		return nil, nil
	}

	return &models.FetchResult{
		HTML:            html,
		Markdown:        markdown,
		Text:            text,
		FinalURL:        finalURL,
		PageTitle:       title,
		PageDescription: description,
		Screenshots:     screenshots,
		RequestCount:    1 + len(frameTexts),
	}, nil
}

func randomizeViewport(page *rod.Page) {
	jitterW := 1920 + (viewportJitter() % 41) - 20
	jitterH := 1080 + (viewportJitter() % 41) - 20
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             jitterW,
		Height:            jitterH,
		DeviceScaleFactor: 1,
	})
}

func blockResources(page *rod.Page) {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		rt := h.Request.Type()
		if blockedResourceTypes[rt] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// collectFrames enumerates non-blank child frames with a 5s ceiling each,
// inlining their text into the page's combined content.
func (f *HeadlessFetcher) collectFrames(page *rod.Page) []string {
	var texts []string
	pages, err := page.Browser().Pages()
	if err != nil {
		return nil
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || info.URL == "" || info.URL == "about:blank" {
			continue
		}
		html, err := p.Timeout(f.cfg.FrameTimeout).HTML()
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		texts = append(texts, strings.TrimSpace(doc.Text()))
	}
	return texts
}

func captureScreenshot(page *rod.Page) (string, error) {
	bin, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: intPtr(80),
	})
	if err != nil {
		return "", err
	}
	return string(bin), nil
}

func intPtr(v int) *int { return &v }

func viewportJitter() int {
	return int(time.Now().UnixNano() % 1000)
}
