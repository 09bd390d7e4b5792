package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// ResultCache is the subset of internal/cache.Manager the validator needs;
// kept as an interface so this package doesn't import cache directly.
type ResultCache interface {
	Get(ctx context.Context, key string) models.CacheGetResult
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

const cacheTTL = 3600 * time.Second

// Validator wraps a Strategy with an optional result cache.
type Validator struct {
	strategy   Strategy
	cache      ResultCache
	cacheOn    bool
}

// New constructs a Validator. Pass a nil cache (or cacheEnabled=false) to
// disable caching entirely.
func New(strategy Strategy, cache ResultCache, cacheEnabled bool) *Validator {
	return &Validator{strategy: strategy, cache: cache, cacheOn: cacheEnabled && cache != nil}
}

// Validate runs the configured strategy, consulting and populating the
// cache (keyed by sha256(html:task:url):strategy) when enabled.
func (v *Validator) Validate(ctx context.Context, vctx models.ValidationContext) models.ValidationResult {
	key := ""
	if v.cacheOn {
		key = cacheKey(vctx.HTML, vctx.TaskDescription, vctx.URL, v.strategy.Name())
		if hit := v.cache.Get(ctx, key); hit.FromCache {
			if result, ok := hit.Data.(models.ValidationResult); ok {
				return result
			}
		}
	}

	result := v.strategy.Validate(ctx, vctx)

	if v.cacheOn {
		v.cache.Set(ctx, key, result, cacheTTL)
	}
	return result
}

func cacheKey(html, task, url, strategy string) string {
	h := sha256.Sum256([]byte(html + ":" + task + ":" + url))
	return hex.EncodeToString(h[:]) + ":" + strategy
}
