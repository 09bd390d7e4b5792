package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityStrategyExtractsEmailsWhenRelevant(t *testing.T) {
	s := NewCosineSimilarityStrategy(0.01, 50)
	ectx := Context{
		Text:            "We are hiring engineers. Contact us at jobs@example.com to apply for engineering roles.",
		TaskDescription: "engineering hiring jobs",
	}
	result := s.Extract(context.Background(), ectx)
	assert.True(t, result.Success)
	found := false
	for _, e := range result.Entities {
		if e.Data["email"] == "jobs@example.com" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCosineSimilarityReturnsZeroForDisjointVocabularies(t *testing.T) {
	sim := cosineSimilarity(tokenize("apples bananas oranges"), tokenize("rockets satellites orbits"))
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarityIsHighForIdenticalText(t *testing.T) {
	sim := cosineSimilarity(tokenize("engineering jobs hiring now"), tokenize("engineering jobs hiring now"))
	assert.Greater(t, sim, 0.9)
}

func TestPatternExtractFindsPriceAndURL(t *testing.T) {
	entities := patternExtract("Starting at $49.99 per month, see https://example.com/pricing for details.")
	var sawPrice, sawURL bool
	for _, e := range entities {
		if e.Data["price"] != nil {
			sawPrice = true
		}
		if e.Data["url"] != nil {
			sawURL = true
		}
	}
	assert.True(t, sawPrice)
	assert.True(t, sawURL)
}
