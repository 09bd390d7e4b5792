package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aeodev/aiscrape/pkg/models"
)

// DiscoverLinks resolves every anchor href in html against base and
// normalizes the result, skipping URLs that fail to resolve or normalize.
func DiscoverLinks(html, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		resolved, err := baseURL.Parse(href)
		if err != nil {
			return
		}
		norm, err := NormalizeURL(resolved.String())
		if err != nil {
			return
		}
		if !seen[norm] {
			seen[norm] = true
			links = append(links, norm)
		}
	})
	return links
}

var nonCrawlableSchemes = map[string]bool{
	"mailto":     true,
	"tel":        true,
	"javascript": true,
}

// FilterLinks drops visited URLs, same-page anchors, external links (unless
// cfg allows them), links matching a blocked pattern, and non-HTTP schemes.
func FilterLinks(links []string, cfg models.CrawlConfig, visited map[string]bool, current string) []string {
	currentURL, _ := url.Parse(current)
	blocked := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, pattern := range cfg.BlockedPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			blocked = append(blocked, re)
		}
	}

	allowed := make(map[string]bool, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		allowed[strings.ToLower(d)] = true
	}

	out := make([]string, 0, len(links))
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if nonCrawlableSchemes[strings.ToLower(u.Scheme)] {
			continue
		}
		if visited[link] {
			continue
		}
		if currentURL != nil && link == current {
			continue
		}

		isExternal := currentURL != nil && !strings.EqualFold(u.Host, currentURL.Host)
		if isExternal {
			if len(allowed) > 0 {
				if !allowed[strings.ToLower(u.Hostname())] {
					continue
				}
			} else if !cfg.FollowExternalLinks {
				continue
			}
		}

		blockedMatch := false
		for _, re := range blocked {
			if re.MatchString(u.Path) {
				blockedMatch = true
				break
			}
		}
		if blockedMatch {
			continue
		}

		out = append(out, link)
	}
	return out
}

var paginationNoise = regexp.MustCompile(`(?i)page=\d+|/page/\d+|[?&]p=\d+`)

// PrioritizeLinks scores links by shallow path depth, presence of task
// keywords in the URL string, and absence of pagination noise, returning
// them ordered highest score first. Anchor text is not consulted.
func PrioritizeLinks(links []string, task string) []string {
	keywords := extractKeywords(task)

	type scored struct {
		link  string
		score int
	}
	results := make([]scored, 0, len(links))
	for _, link := range links {
		results = append(results, scored{link: link, score: scoreLink(link, keywords)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.link
	}
	return out
}

func scoreLink(link string, keywords []string) int {
	u, err := url.Parse(link)
	if err != nil {
		return 0
	}
	score := 0

	depth := len(strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' }))
	score += maxScore(10-depth, 0)

	lowerLink := strings.ToLower(link)
	for _, kw := range keywords {
		if strings.Contains(lowerLink, kw) {
			score += 5
		}
	}

	if !paginationNoise.MatchString(lowerLink) {
		score += 2
	}

	return score
}

func maxScore(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func extractKeywords(task string) []string {
	task = strings.ToLower(task)
	fields := strings.Fields(task)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) >= 4 {
			out = append(out, f)
		}
	}
	return out
}

var scriptURLPattern = regexp.MustCompile(`(?:fetch|XMLHttpRequest\(\)\.open|axios\.(?:get|post))\s*\(\s*['"]([^'"]+)['"]`)

// DiscoverAjaxEndpoints regex-scans inline script bodies for fetch/XHR URLs
// and resolves them against base; triggers is accepted for parity with the
// data-attribute-derived synthetic endpoints produced upstream.
func DiscoverAjaxEndpoints(base string, scripts []string, triggers []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, script := range scripts {
		matches := scriptURLPattern.FindAllStringSubmatch(script, -1)
		for _, m := range matches {
			resolved, err := baseURL.Parse(m[1])
			if err != nil {
				continue
			}
			s := resolved.String()
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// DiscoverFrameURLs resolves every iframe[src] / frame[src] against base.
func DiscoverFrameURLs(html, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("iframe[src], frame[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		resolved, err := baseURL.Parse(src)
		if err != nil {
			return
		}
		out = append(out, resolved.String())
	})
	return out
}
