// Package ratelimit implements the sliding-window request gate of
// spec.md §4.9. The teacher's internal/scraper/workers/limiter.go backs its
// per-domain gate with a golang.org/x/time/rate token bucket; spec.md §4.9
// and Testable Property 9 both require genuine sliding-window semantics
// instead, so this is a fresh implementation in the teacher's per-key
// mutex-guarded-map idiom rather than a token bucket.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Config mirrors models.RateLimitConfig.
type Config = models.RateLimitConfig

// Limiter is the process-wide sliding-window rate limiter, keyed by caller.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*window
}

type window struct {
	timestamps []time.Time
}

// New constructs an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*window)}
}

// CheckLimit increments the counter for key and reports whether the call is
// allowed under cfg's sliding window. Fails open on internal error per
// spec.md §4.9 - CheckLimit itself cannot error, so "fail open" here means
// an uninitialized Config is treated as unlimited rather than panicking.
func (l *Limiter) CheckLimit(key string, cfg Config) models.RateLimitResult {
	if !cfg.Enabled || cfg.MaxRequests <= 0 || cfg.WindowMS <= 0 {
		return models.RateLimitResult{Allowed: true, Remaining: maxInt(cfg.MaxRequests, 1)}
	}

	windowDur := time.Duration(cfg.WindowMS) * time.Millisecond
	now := time.Now()
	cutoff := now.Add(-windowDur)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.buckets[key]
	if !ok {
		w = &window{}
		l.buckets[key] = w
	}

	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	resetTime := now.Add(windowDur)
	if len(w.timestamps) > 0 {
		resetTime = w.timestamps[0].Add(windowDur)
	}

	if len(w.timestamps) >= cfg.MaxRequests {
		return models.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: time.Until(resetTime),
		}
	}

	w.timestamps = append(w.timestamps, now)
	return models.RateLimitResult{
		Allowed:   true,
		Remaining: cfg.MaxRequests - len(w.timestamps),
		ResetTime: resetTime,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DefaultKey extracts the client identity the default keyer uses: the
// remote address, or the first entry of X-Forwarded-For when present.
func DefaultKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

// PerUserKey keys by an authenticated principal id, falling back to
// DefaultKey when no principal is known.
func PerUserKey(r *http.Request, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return DefaultKey(r)
}

// Headers renders both the modern (RateLimit-*) and legacy (X-RateLimit-*)
// header sets from a result, plus Retry-After when the call was denied.
func Headers(result models.RateLimitResult, limit int) http.Header {
	h := http.Header{}
	h.Set("RateLimit-Limit", strconv.Itoa(limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("RateLimit-Reset", strconv.Itoa(int(time.Until(result.ResetTime).Seconds())))
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(int(result.ResetTime.Unix())))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
	}
	return h
}
