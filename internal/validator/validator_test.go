package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

type memCache struct {
	store map[string]interface{}
	gets  int
}

func newMemCache() *memCache { return &memCache{store: make(map[string]interface{})} }

func (c *memCache) Get(_ context.Context, key string) models.CacheGetResult {
	c.gets++
	if v, ok := c.store[key]; ok {
		return models.CacheGetResult{Data: v, FromCache: true}
	}
	return models.CacheGetResult{FromCache: false}
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) {
	c.store[key] = value
}

func TestValidatorCachesResultAcrossCalls(t *testing.T) {
	cache := newMemCache()
	v := New(NewRuleBasedStrategy(minScoreDefault), cache, true)
	vctx := richContext()

	first := v.Validate(context.Background(), vctx)
	second := v.Validate(context.Background(), vctx)

	require.Equal(t, first.Sufficient, second.Sufficient)
	assert.Len(t, cache.store, 1)
}

func TestValidatorSkipsCacheWhenDisabled(t *testing.T) {
	cache := newMemCache()
	v := New(NewRuleBasedStrategy(minScoreDefault), cache, false)
	v.Validate(context.Background(), richContext())
	assert.Empty(t, cache.store)
}
