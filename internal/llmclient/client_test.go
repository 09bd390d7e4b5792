package llmclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aeodev/aiscrape/pkg/utils"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{APIKey: "key"}, nil)
	assert.NotEmpty(t, c.cfg.Models)
	assert.Equal(t, 8192, c.cfg.MaxTokens)
}

func TestIsAvailableFalseWithoutAPIKey(t *testing.T) {
	c := New(Config{}, nil)
	assert.False(t, c.IsAvailable())
}

func TestModelPreferencePromotesLastGoodModel(t *testing.T) {
	c := New(Config{APIKey: "key", Models: []string{"a", "b", "c"}}, nil)
	c.rememberGoodModel("c")
	assert.Equal(t, []string{"c", "a", "b"}, c.modelPreference())
}

func TestClassifyAnthropicErrorMapsStatusCodes(t *testing.T) {
	rateLimited := classifyAnthropicError(fmtErr("429 rate limit exceeded"))
	assert.True(t, utils.IsCode(rateLimited, http.StatusTooManyRequests))

	overloaded := classifyAnthropicError(fmtErr("503 service overloaded"))
	assert.True(t, utils.IsCode(overloaded, http.StatusServiceUnavailable))

	notFound := classifyAnthropicError(fmtErr("404 model not found"))
	assert.True(t, utils.IsCode(notFound, http.StatusNotFound))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func fmtErr(s string) error { return simpleErr(s) }
