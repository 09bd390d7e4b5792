package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestAgentFetcherCrawlsLinkedPages(t *testing.T) {
	filler := strings.Repeat("Acme careers content about engineering roles. ", 10)
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Jobs</title></head><body>" + filler + `<a href="/jobs/1">Engineer</a></body></html>`))
	})
	mux.HandleFunc("/jobs/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Engineer role</title></head><body>" + filler + "</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpTier := NewHTTPFetcher(DefaultHTTPConfig())
	agent := NewAgentFetcher(httpTier, nil, models.CrawlConfig{MaxPages: 5, MaxDepth: 2}, DefaultAgentConfig())

	result, err := agent.Fetch(context.Background(), srv.URL+"/jobs", models.FetchOptions{TaskDescription: "engineering jobs"}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.HTML, "PAGE")
	assert.GreaterOrEqual(t, result.RequestCount, 1)
}

func TestAgentFetcherReturnsNilWithoutHTTPTier(t *testing.T) {
	agent := NewAgentFetcher(nil, nil, models.CrawlConfig{}, DefaultAgentConfig())
	result, err := agent.Fetch(context.Background(), "https://example.com", models.FetchOptions{}, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestFindAjaxTriggersMatchesHashAnchors(t *testing.T) {
	triggers := findAjaxTriggers(`<a href="#" data-year="2023">2023</a>`)
	require.NotEmpty(t, triggers)
	assert.Equal(t, "2023", triggers[0])
}
