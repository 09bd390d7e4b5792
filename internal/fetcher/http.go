package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/aeodev/aiscrape/internal/proxy"
	"github.com/aeodev/aiscrape/pkg/models"
)

// HTTPConfig configures the plain HTTP tier.
type HTTPConfig struct {
	Timeout            time.Duration
	MaxAjaxEndpoints   int
	AjaxFetchTimeout   time.Duration
	FrameFetchTimeout  time.Duration
	MaxFrameLinks      int
	FrameLinkTimeout   time.Duration
}

// DefaultHTTPConfig matches the fetch spec's stated budgets.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           10 * time.Second,
		MaxAjaxEndpoints:  10,
		AjaxFetchTimeout:  3 * time.Second,
		FrameFetchTimeout: 5 * time.Second,
		MaxFrameLinks:     15,
		FrameLinkTimeout:  3 * time.Second,
	}
}

// HTTPFetcher is the first, cheapest cascade tier: a single GET plus
// synthesized AJAX/frame augmentation, no browser involved.
type HTTPFetcher struct {
	cfg      HTTPConfig
	client   *http.Client
	proxies  *proxy.Pool
	rotation models.RotationStrategy
}

// NewHTTPFetcher builds an HTTPFetcher. A zero Config gets DefaultHTTPConfig.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg = DefaultHTTPConfig()
	}
	return &HTTPFetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// WithProxyPool enables proxy routing for requests whose FetchOptions set
// UseProxy; pool.GetNext(rotation) picks the member per request.
func (f *HTTPFetcher) WithProxyPool(pool *proxy.Pool, rotation models.RotationStrategy) *HTTPFetcher {
	f.proxies = pool
	f.rotation = rotation
	return f
}

// clientFor returns the pool-wide client, or a one-off client routed through
// a pool proxy when useProxy is set and a healthy proxy is available.
func (f *HTTPFetcher) clientFor(useProxy bool) (*http.Client, *models.Proxy) {
	if !useProxy || f.proxies == nil {
		return f.client, nil
	}
	p := f.proxies.GetNext(f.rotation)
	if p == nil {
		return f.client, nil
	}
	proxyURL, err := url.Parse(p.URL)
	if err != nil {
		return f.client, nil
	}
	return &http.Client{
		Timeout:   f.cfg.Timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}, p
}

func (f *HTTPFetcher) Name() string { return string(models.ScraperHTTP) }

var dataAttrPattern = regexp.MustCompile(`data-(year|id|page)="(\d+)"`)
var shortNumericHashAnchor = regexp.MustCompile(`<a[^>]*href="#"[^>]*>\s*(\d{1,4})\s*</a>`)

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	models.EmitEvent(emit, models.ActionEvent{JobID: opts.JobID, Type: models.ActionNavigation, Message: "fetching via plain HTTP", Timestamp: time.Now()})

	reqCount := 0
	body, finalURL, status, contentType, err := f.get(ctx, rawURL, opts.UseProxy)
	reqCount++
	if err != nil {
		return nil, nil // soft failure: try next tier
	}
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") && contentType != "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")

	converter := htmlmd.NewConverter(hostOf(finalURL), true, nil)
	markdown, _ := converter.ConvertString(body)
	text := strings.TrimSpace(doc.Text())

	var htmlBuilder strings.Builder
	htmlBuilder.WriteString(body)

	ajaxTexts, ajaxCount := f.fetchAjaxEndpoints(ctx, finalURL, body, doc, opts.UseProxy)
	reqCount += ajaxCount
	for _, t := range ajaxTexts {
		text += "\n" + t
		htmlBuilder.WriteString("\n<!-- ajax: " + t + " -->")
	}

	frameTexts, frameCount := f.fetchFrames(ctx, finalURL, doc, opts.UseProxy)
	reqCount += frameCount
	for _, t := range frameTexts {
		text += "\n" + t
		htmlBuilder.WriteString("\n<!-- frame: " + t + " -->")
	}

	finalHTML := htmlBuilder.String()
	if !sufficient(text, finalHTML) {
		return nil, nil
	}

	return &models.FetchResult{
		HTML:            finalHTML,
		Markdown:        markdown,
		Text:            text,
		FinalURL:        finalURL,
		StatusCode:      status,
		ContentType:     contentType,
		PageTitle:       title,
		PageDescription: description,
		RequestCount:    reqCount,
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string, useProxy bool) (body, finalURL string, status int, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", 0, "", err
	}
	for k, v := range fingerprintHeaders() {
		req.Header.Set(k, v)
	}

	client, picked := f.clientFor(useProxy)
	start := time.Now()
	resp, err := client.Do(req)
	if picked != nil {
		f.proxies.MarkUsed(picked.ID)
		if err != nil {
			f.proxies.MarkFailure(picked.ID)
		} else {
			f.proxies.MarkSuccess(picked.ID, time.Since(start))
		}
	}
	if err != nil {
		return "", "", 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", "", 0, "", err
	}

	finalURL = rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return string(data), finalURL, resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// fetchAjaxEndpoints synthesizes candidate AJAX URLs from numeric
// data-year/data-id/data-page attributes and short-numeric "#" anchors,
// fetching up to cfg.MaxAjaxEndpoints of them in parallel.
func (f *HTTPFetcher) fetchAjaxEndpoints(ctx context.Context, base, rawHTML string, doc *goquery.Document, useProxy bool) ([]string, int) {
	years := map[string]bool{}
	for _, m := range dataAttrPattern.FindAllStringSubmatch(rawHTML, -1) {
		years[m[2]] = true
	}
	for _, m := range shortNumericHashAnchor.FindAllStringSubmatch(rawHTML, -1) {
		years[m[1]] = true
	}
	if len(years) == 0 {
		return nil, 0
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, 0
	}
	path := u.Path

	var candidates []string
	for y := range years {
		candidates = append(candidates,
			fmt.Sprintf("%s%s?year=%s", u.Scheme+"://"+u.Host, path, y),
			fmt.Sprintf("%s%s?ajax=true&year=%s", u.Scheme+"://"+u.Host, path, y),
			fmt.Sprintf("%s/api%s?year=%s", u.Scheme+"://"+u.Host, path, y),
		)
		if len(candidates) >= f.cfg.MaxAjaxEndpoints {
			break
		}
	}
	sort.Strings(candidates)
	if len(candidates) > f.cfg.MaxAjaxEndpoints {
		candidates = candidates[:f.cfg.MaxAjaxEndpoints]
	}

	var mu sync.Mutex
	var results []string
	var wg sync.WaitGroup
	for _, endpoint := range candidates {
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, f.cfg.AjaxFetchTimeout)
			defer cancel()
			body, _, _, ct, err := f.get(cctx, ep, useProxy)
			if err != nil || body == "" {
				return
			}
			text := fragmentFromAjaxResponse(body, ct)
			if text == "" {
				return
			}
			mu.Lock()
			results = append(results, text)
			mu.Unlock()
		}(endpoint)
	}
	wg.Wait()
	return results, len(candidates)
}

// fragmentFromAjaxResponse parses a JSON body under data/results/items keys
// (or a root array); JSON failure falls back to stripping it as an HTML
// fragment.
func fragmentFromAjaxResponse(body, contentType string) string {
	var generic interface{}
	if json.Unmarshal([]byte(body), &generic) == nil {
		if m, ok := generic.(map[string]interface{}); ok {
			for _, key := range []string{"data", "results", "items"} {
				if v, ok := m[key]; ok {
					b, _ := json.Marshal(v)
					return string(b)
				}
			}
			b, _ := json.Marshal(m)
			return string(b)
		}
		if arr, ok := generic.([]interface{}); ok {
			b, _ := json.Marshal(arr)
			return string(b)
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// fetchFrames resolves iframe/frame sources, fetches each within
// FrameFetchTimeout, and chases "detail" links found inside them.
func (f *HTTPFetcher) fetchFrames(ctx context.Context, base string, doc *goquery.Document, useProxy bool) ([]string, int) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, 0
	}

	var frameURLs []string
	doc.Find("iframe[src], frame[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		frameURLs = append(frameURLs, baseURL.ResolveReference(ref).String())
	})

	var texts []string
	reqCount := 0
	var detailLinks []string
	for _, fu := range frameURLs {
		fctx, cancel := context.WithTimeout(ctx, f.cfg.FrameFetchTimeout)
		body, _, _, _, err := f.get(fctx, fu, useProxy)
		cancel()
		reqCount++
		if err != nil || body == "" {
			continue
		}
		fdoc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		texts = append(texts, strings.TrimSpace(fdoc.Text()))
		detailLinks = append(detailLinks, findDetailLinks(fdoc, fu)...)
	}

	if len(detailLinks) > f.cfg.MaxFrameLinks {
		detailLinks = detailLinks[:f.cfg.MaxFrameLinks]
	}
	for _, link := range detailLinks {
		lctx, cancel := context.WithTimeout(ctx, f.cfg.FrameLinkTimeout)
		body, _, _, _, err := f.get(lctx, link, useProxy)
		cancel()
		reqCount++
		if err != nil || body == "" {
			continue
		}
		ldoc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		texts = append(texts, strings.TrimSpace(ldoc.Text()))
	}

	return texts, reqCount
}

var detailLinkText = regexp.MustCompile(`(?i)learn|more|detail|view|→|>>`)

func findDetailLinks(doc *goquery.Document, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		class, _ := s.Attr("class")
		text := s.Text()
		if href == "" || href == "#" {
			return
		}
		if !detailLinkText.MatchString(text) && !strings.Contains(class, "btn") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, baseURL.ResolveReference(ref).String())
	})
	return links
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
