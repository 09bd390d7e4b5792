package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestFirstHeadingExtractsH1(t *testing.T) {
	md := "# Acme Corp Careers\n\nWe are hiring.\n\n## Benefits\n"
	assert.Equal(t, "Acme Corp Careers", firstHeading(md))
}

func TestFirstParagraphSkipsHeadings(t *testing.T) {
	md := "# Title\n\nThis is the first real paragraph.\n\nSecond paragraph."
	assert.Equal(t, "This is the first real paragraph.", firstParagraph(md))
}

func TestStripMarkdownDecorationsRemovesSyntax(t *testing.T) {
	out := stripMarkdownDecorations("**bold** _em_ `code` # heading > quote")
	assert.NotContains(t, out, "*")
	assert.NotContains(t, out, "`")
	assert.NotContains(t, out, "#")
}

func TestReaderFetcherReturnsNilWithoutApp(t *testing.T) {
	f := NewReaderFetcher(nil, DefaultReaderConfig())
	result, err := f.Fetch(context.Background(), "https://example.com/jobs", models.FetchOptions{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, result)
}
