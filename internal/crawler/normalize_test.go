package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURLStripsDefaultPortAndFragment(t *testing.T) {
	norm, err := NormalizeURL("HTTP://Example.com:80/path/#section")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/path", norm)
}

func TestNormalizeURLDropsTrackingParamsAndSortsRest(t *testing.T) {
	norm, err := NormalizeURL("https://example.com/p?b=2&utm_source=x&a=1&fbclid=zzz")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p?a=1&b=2", norm)
}

func TestNormalizeURLStripsTrailingSlash(t *testing.T) {
	norm, err := NormalizeURL("https://example.com/a/b/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/b", norm)
}

func TestNormalizeURLKeepsRootSlash(t *testing.T) {
	norm, err := NormalizeURL("https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", norm)
}

func TestDuplicateDetectorAddURLReturnsTrueOnlyOnce(t *testing.T) {
	d := NewDuplicateDetector()
	assert.True(t, d.AddURL("https://example.com/a"))
	assert.False(t, d.AddURL("https://example.com/a/"))
	assert.False(t, d.AddURL("HTTPS://EXAMPLE.com/a"))
	assert.Equal(t, 1, d.Size())
}
