// Package validator implements the content-sufficiency validator of
// spec.md §4.5: an 18-rule library, four scoring bins, and Heuristic /
// RuleBased / AI / Hybrid strategies, grounded on the teacher's
// internal/llm/processors/html_cleaner.go for goquery-based HTML inspection
// and on internal/llm/providers/claude.go for the AI strategy's single-call
// sufficiency prompt.
package validator

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Rule is one named, weighted content-sufficiency check.
type Rule struct {
	Name     string
	Category string
	Weight   float64
	Check    func(ctx models.ValidationContext, doc *goquery.Document) models.RuleCheck
}

// Bin is one of the four dimensions the overall quality score weighs.
const (
	BinCompleteness = "completeness"
	BinRelevance    = "relevance"
	BinStructure    = "structure"
	BinQuality      = "quality"
)

// binFor maps a rule's library Category onto one of the four scoring bins.
// Length rules fold into quality (content richness); Dynamic rules fold
// into structure (they detect structural placeholders for not-yet-loaded
// content) since spec.md's overall formula only names four bins.
func binFor(category string) string {
	switch category {
	case "Completeness":
		return BinCompleteness
	case "Relevance":
		return BinRelevance
	case "Structure", "Dynamic":
		return BinStructure
	default: // Length, Quality
		return BinQuality
	}
}

const minContentLength = 500

var (
	ajaxIndicatorPattern  = regexp.MustCompile(`(?i)data-load|XMLHttpRequest|fetch\(`)
	loadingPlaceholderRe  = regexp.MustCompile(`(?i)loading\.{0,3}|please wait|click to view`)
	placeholderTextRe     = regexp.MustCompile(`(?i)lorem ipsum|coming soon|under construction|placeholder`)
	truncatedContentRe    = regexp.MustCompile(`(?i)\.\.\.\s*$|read more\s*$|show more\s*$`)
	semanticTags          = []string{"article", "main", "section", "header", "footer", "nav", "aside"}
)

// BuiltinRules returns the fixed, stable-named library of 18 rules.
func BuiltinRules() []Rule {
	return []Rule{
		{"minimum-content-length", "Length", 0.30, ruleMinimumContentLength},
		{"minimum-word-count", "Length", 0.20, ruleMinimumWordCount},
		{"empty-content-ratio", "Length", 0.15, ruleEmptyContentRatio},
		{"semantic-html-presence", "Structure", 0.20, ruleSemanticHTMLPresence},
		{"main-content-presence", "Structure", 0.25, ruleMainContentPresence},
		{"navigation-content-ratio", "Structure", 0.15, ruleNavigationContentRatio},
		{"ajax-indicators", "Dynamic", 0.30, ruleAjaxIndicators},
		{"empty-data-containers", "Dynamic", 0.25, ruleEmptyDataContainers},
		{"loading-placeholders", "Dynamic", 0.20, ruleLoadingPlaceholders},
		{"interactive-elements", "Dynamic", 0.15, ruleInteractiveElements},
		{"noise-ratio", "Quality", 0.20, ruleNoiseRatio},
		{"text-density", "Quality", 0.15, ruleTextDensity},
		{"link-density", "Quality", 0.10, ruleLinkDensity},
		{"keyword-matching", "Relevance", 0.30, ruleKeywordMatching},
		{"title-relevance", "Relevance", 0.20, ruleTitleRelevance},
		{"placeholder-detection", "Completeness", 0.25, rulePlaceholderDetection},
		{"incomplete-table-detection", "Completeness", 0.20, ruleIncompleteTableDetection},
		{"truncated-content-detection", "Completeness", 0.15, ruleTruncatedContentDetection},
	}
}

// HeuristicRuleNames is the fast subset the Heuristic strategy runs: one
// rule per category, the one with the highest weight in its category.
var HeuristicRuleNames = map[string]bool{
	"minimum-content-length":  true,
	"main-content-presence":   true,
	"ajax-indicators":         true,
	"noise-ratio":             true,
	"keyword-matching":        true,
	"placeholder-detection":   true,
}

func ruleMinimumContentLength(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	total := len(ctx.HTML) + len(ctx.Text)
	passed := total >= minContentLength
	score := 0.0
	if minContentLength > 0 {
		score = clamp01(float64(total) / float64(minContentLength))
	}
	reason := "content length sufficient"
	if !passed {
		reason = "html+text below minimum content length"
	}
	return models.RuleCheck{Name: "minimum-content-length", Passed: passed, Score: score, Reason: reason}
}

func ruleMinimumWordCount(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	words := len(strings.Fields(ctx.Text))
	passed := words >= 20
	score := clamp01(float64(words) / 20.0)
	reason := "word count sufficient"
	if !passed {
		reason = "fewer than 20 words"
	}
	return models.RuleCheck{Name: "minimum-word-count", Passed: passed, Score: score, Reason: reason}
}

func ruleEmptyContentRatio(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "empty-content-ratio", Passed: false, Score: 0, Reason: "no parsed document"}
	}
	total := 0
	empty := 0
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		total++
		if strings.TrimSpace(s.Text()) == "" {
			empty++
		}
	})
	ratio := 0.0
	if total > 0 {
		ratio = float64(empty) / float64(total)
	}
	passed := ratio < 0.5
	reason := "leaf elements mostly populated"
	if !passed {
		reason = "half or more of leaf elements are empty"
	}
	return models.RuleCheck{Name: "empty-content-ratio", Passed: passed, Score: clamp01(1 - ratio), Reason: reason}
}

func ruleSemanticHTMLPresence(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "semantic-html-presence", Passed: false, Score: 0, Reason: "no parsed document"}
	}
	totalElements := doc.Find("*").Length()
	semanticCount := 0
	for _, tag := range semanticTags {
		semanticCount += doc.Find(tag).Length()
	}
	ratio := 0.0
	if totalElements > 0 {
		ratio = float64(semanticCount) / float64(totalElements)
	}
	passed := ratio >= 0.30
	reason := "semantic tags present"
	if !passed {
		reason = "fewer than 30% semantic tags"
	}
	return models.RuleCheck{Name: "semantic-html-presence", Passed: passed, Score: clamp01(ratio / 0.30), Reason: reason}
}

func ruleMainContentPresence(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "main-content-presence", Passed: false, Score: 0, Reason: "no parsed document"}
	}
	found := doc.Find("main").Length() > 0 ||
		doc.Find("article").Length() > 0 ||
		doc.Find("[role=main]").Length() > 0 ||
		doc.Find(".main-content").Length() > 0
	score := 0.0
	if found {
		score = 1.0
	}
	reason := "main content container present"
	if !found {
		reason = "no main/article/[role=main]/.main-content found"
	}
	return models.RuleCheck{Name: "main-content-presence", Passed: found, Score: score, Reason: reason}
}

func ruleNavigationContentRatio(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "navigation-content-ratio", Passed: false, Score: 0, Reason: "no parsed document"}
	}
	bodyText := len(strings.TrimSpace(doc.Find("body").Text()))
	navText := len(strings.TrimSpace(doc.Find("nav").Text())) + len(strings.TrimSpace(doc.Find("header").Text()))
	ratio := 0.0
	if bodyText > 0 {
		ratio = float64(navText) / float64(bodyText)
	}
	passed := ratio < 0.40
	reason := "navigation/header text proportionate"
	if !passed {
		reason = "navigation+header text is 40% or more of body"
	}
	return models.RuleCheck{Name: "navigation-content-ratio", Passed: passed, Score: clamp01(1 - ratio), Reason: reason}
}

func ruleAjaxIndicators(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	matched := ajaxIndicatorPattern.MatchString(ctx.HTML)
	passed := !matched
	score := 1.0
	reason := "no AJAX loading indicators found"
	if matched {
		score = 0.0
		reason = "page contains AJAX loading indicators"
	}
	return models.RuleCheck{Name: "ajax-indicators", Passed: passed, Score: score, Reason: reason}
}

func ruleEmptyDataContainers(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "empty-data-containers", Passed: true, Score: 1, Reason: "no parsed document"}
	}
	found := false
	doc.Find("tbody, ul, ol").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) == "" {
			found = true
		}
	})
	doc.Find("[class*=data], [class*=list]").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) == "" {
			found = true
		}
	})
	passed := !found
	score := 1.0
	reason := "no empty data containers found"
	if found {
		score = 0.0
		reason = "empty tbody/ul/ol or data/list container found"
	}
	return models.RuleCheck{Name: "empty-data-containers", Passed: passed, Score: score, Reason: reason}
}

func ruleLoadingPlaceholders(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	matched := loadingPlaceholderRe.MatchString(ctx.Text) || loadingPlaceholderRe.MatchString(ctx.HTML)
	passed := !matched
	score := 1.0
	reason := "no loading placeholders found"
	if matched {
		score = 0.0
		reason = "page text matches a loading placeholder pattern"
	}
	return models.RuleCheck{Name: "loading-placeholders", Passed: passed, Score: score, Reason: reason}
}

func ruleInteractiveElements(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "interactive-elements", Passed: true, Score: 1, Reason: "no parsed document"}
	}
	count := doc.Find("button").Length() + doc.Find("input[type=button], input[type=submit]").Length()
	passed := count <= 5
	reason := "interactive element count within range"
	if !passed {
		reason = "more than 5 buttons/clickable inputs found"
	}
	return models.RuleCheck{Name: "interactive-elements", Passed: passed, Score: clamp01(1 - float64(count)/20.0), Reason: reason}
}

func ruleNoiseRatio(ctx models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "noise-ratio", Passed: true, Score: 1, Reason: "no parsed document"}
	}
	bodyText := len(strings.TrimSpace(doc.Find("body").Text()))
	noiseText := 0
	doc.Find("script, style, nav, footer, [class*=ad], [class*=banner], [class*=cookie]").Each(func(_ int, s *goquery.Selection) {
		noiseText += len(strings.TrimSpace(s.Text()))
	})
	ratio := 0.0
	if bodyText > 0 {
		ratio = float64(noiseText) / float64(bodyText)
	}
	passed := ratio < 0.50
	reason := "noise text proportionate"
	if !passed {
		reason = "noise text is 50% or more of body text"
	}
	return models.RuleCheck{Name: "noise-ratio", Passed: passed, Score: clamp01(1 - ratio), Reason: reason}
}

func ruleTextDensity(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	ratio := 0.0
	if len(ctx.HTML) > 0 {
		ratio = float64(len(ctx.Text)) / float64(len(ctx.HTML))
	}
	passed := ratio >= 0.10
	reason := "text density acceptable"
	if !passed {
		reason = "text/html ratio below 10%"
	}
	return models.RuleCheck{Name: "text-density", Passed: passed, Score: clamp01(ratio / 0.10), Reason: reason}
}

func ruleLinkDensity(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "link-density", Passed: true, Score: 1, Reason: "no parsed document"}
	}
	bodyText := len(strings.TrimSpace(doc.Find("body").Text()))
	linkText := 0
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		linkText += len(strings.TrimSpace(s.Text()))
	})
	ratio := 0.0
	if bodyText > 0 {
		ratio = float64(linkText) / float64(bodyText)
	}
	passed := ratio >= 0.05 && ratio <= 0.30
	reason := "link density within expected range"
	if !passed {
		reason = "link density outside [5%, 30%]"
	}
	score := 1.0
	if !passed {
		if ratio < 0.05 {
			score = clamp01(ratio / 0.05)
		} else {
			score = clamp01(0.30 / ratio)
		}
	}
	return models.RuleCheck{Name: "link-density", Passed: passed, Score: score, Reason: reason}
}

func ruleKeywordMatching(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	words := taskWords(ctx.TaskDescription)
	if len(words) == 0 {
		return models.RuleCheck{Name: "keyword-matching", Passed: true, Score: 1, Reason: "no task description to match"}
	}
	lowerText := strings.ToLower(ctx.Text)
	matches := 0
	for _, w := range words {
		if strings.Contains(lowerText, w) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(words))
	passed := ratio >= 0.30
	reason := "task keywords found in content"
	if !passed {
		reason = "fewer than 30% of task words found in content"
	}
	return models.RuleCheck{Name: "keyword-matching", Passed: passed, Score: clamp01(ratio / 0.30), Reason: reason}
}

func ruleTitleRelevance(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	words := taskWords(ctx.TaskDescription)
	if len(words) == 0 {
		return models.RuleCheck{Name: "title-relevance", Passed: true, Score: 1, Reason: "no task description to match"}
	}
	lowerTitle := strings.ToLower(ctx.PageTitle)
	matches := 0
	for _, w := range words {
		if strings.Contains(lowerTitle, w) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(words))
	passed := ratio >= 0.20
	reason := "task keywords found in title"
	if !passed {
		reason = "fewer than 20% of task words found in title"
	}
	return models.RuleCheck{Name: "title-relevance", Passed: passed, Score: clamp01(ratio / 0.20), Reason: reason}
}

func rulePlaceholderDetection(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	matched := placeholderTextRe.MatchString(ctx.Text)
	passed := !matched
	score := 1.0
	reason := "no placeholder text found"
	if matched {
		score = 0.0
		reason = "placeholder text (lorem ipsum / coming soon / etc.) found"
	}
	return models.RuleCheck{Name: "placeholder-detection", Passed: passed, Score: score, Reason: reason}
}

func ruleIncompleteTableDetection(_ models.ValidationContext, doc *goquery.Document) models.RuleCheck {
	if doc == nil {
		return models.RuleCheck{Name: "incomplete-table-detection", Passed: true, Score: 1, Reason: "no parsed document"}
	}
	incomplete := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() > 0 && table.Find("td, th").Length() == 0 {
			incomplete = true
		}
	})
	passed := !incomplete
	score := 1.0
	reason := "tables are complete"
	if incomplete {
		score = 0.0
		reason = "table has rows but no cells"
	}
	return models.RuleCheck{Name: "incomplete-table-detection", Passed: passed, Score: score, Reason: reason}
}

func ruleTruncatedContentDetection(ctx models.ValidationContext, _ *goquery.Document) models.RuleCheck {
	matched := truncatedContentRe.MatchString(strings.TrimSpace(ctx.Text))
	passed := !matched
	score := 1.0
	reason := "content does not appear truncated"
	if matched {
		score = 0.0
		reason = "trailing ellipsis or 'read more' marker found"
	}
	return models.RuleCheck{Name: "truncated-content-detection", Passed: passed, Score: score, Reason: reason}
}

func taskWords(task string) []string {
	task = strings.ToLower(task)
	fields := strings.Fields(task)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
