package fetcher

import (
	"context"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Cascade tries each tier in order, stopping at the first one whose result
// passes IsValidContent against minContentLength (spec.md §4.1 step 2). A
// tier can return a non-nil result that still falls short of
// minContentLength -- that tier's own internal floor is lower than the
// cascade's configured threshold -- in which case the cascade keeps trying
// later tiers, falling back to the longest insufficient result seen if no
// tier ever clears the bar. This is the Auto policy: HTTP -> Reader ->
// Headless, by construction of the tiers slice the orchestrator passes in.
// Smart and AI-Agent are explicit-selection tiers, not part of the Auto
// cascade.
func Cascade(ctx context.Context, tiers []Fetcher, url string, opts models.FetchOptions, emit models.Emit, minContentLength int) (*models.FetchResult, string, error) {
	var fallback *models.FetchResult
	var fallbackName string

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		result, err := tier.Fetch(ctx, url, opts, emit)
		if err != nil {
			return nil, "", err
		}
		if result == nil {
			continue
		}
		if IsValidContent(result.Text, result.HTML, minContentLength) {
			return result, tier.Name(), nil
		}
		if fallback == nil || len(result.Text) > len(fallback.Text) {
			fallback = result
			fallbackName = tier.Name()
		}
	}
	if fallback != nil {
		return fallback, fallbackName, nil
	}
	return nil, "", nil
}
