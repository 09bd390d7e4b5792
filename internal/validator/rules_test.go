package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestMinimumContentLengthFailsOnShortContent(t *testing.T) {
	ctx := models.ValidationContext{HTML: "<p>hi</p>", Text: "hi"}
	check := ruleMinimumContentLength(ctx, nil)
	assert.False(t, check.Passed)
}

func TestMainContentPresenceDetectsArticleTag(t *testing.T) {
	html := `<html><body><article>content here</article></body></html>`
	checks := RunRules(models.ValidationContext{HTML: html, Text: "content here"}, []Rule{
		{"main-content-presence", "Structure", 0.25, ruleMainContentPresence},
	})
	assert.True(t, checks[0].Passed)
}

func TestAjaxIndicatorsFailsWhenPresent(t *testing.T) {
	ctx := models.ValidationContext{HTML: `<div data-load="true"></div>`}
	check := ruleAjaxIndicators(ctx, nil)
	assert.False(t, check.Passed)
}

func TestPlaceholderDetectionCatchesLoremIpsum(t *testing.T) {
	ctx := models.ValidationContext{Text: "Lorem ipsum dolor sit amet"}
	check := rulePlaceholderDetection(ctx, nil)
	assert.False(t, check.Passed)
}

func TestKeywordMatchingPassesWithStrongOverlap(t *testing.T) {
	ctx := models.ValidationContext{TaskDescription: "find job openings engineering", Text: "we have job openings in engineering today"}
	check := ruleKeywordMatching(ctx, nil)
	assert.True(t, check.Passed)
}

func TestIncompleteTableDetectionCatchesRowsWithoutCells(t *testing.T) {
	html := `<table><tr></tr></table>`
	checks := RunRules(models.ValidationContext{HTML: html}, []Rule{
		{"incomplete-table-detection", "Completeness", 0.20, ruleIncompleteTableDetection},
	})
	assert.False(t, checks[0].Passed)
}
