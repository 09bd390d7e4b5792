// Package retry implements the exponential-backoff retry policy shared by
// the scrape orchestrator and the LLM extraction strategy.
//
// The teacher's worker pool retried with time.Duration(attempt) * time.Second
// while logging it as "exponential backoff" -- that is linear. This package
// is the corrected, genuinely exponential version, shaped the same way: a
// small attempt-indexed loop the caller drives, not a generic retrier type
// hierarchy.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures one retry loop.
type Policy struct {
	BaseDelay  time.Duration // RETRY_BACKOFF_BASE
	MaxRetries int           // MAX_RETRIES
	MaxDelay   time.Duration // ceiling applied after exponentiation+jitter
}

// Backoff returns the delay before attempt n (0-indexed: n=0 is the delay
// before the first retry, after the initial attempt failed).
func (p Policy) Backoff(n int) time.Duration {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	base := float64(p.BaseDelay) * math.Pow(2, float64(n))
	// +/-20% jitter so a thundering herd of retries doesn't resynchronize.
	jittered := base * (1 + (rand.Float64()*0.4 - 0.2))
	delay := time.Duration(jittered)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// IsRetryable is supplied by the caller to distinguish soft failures (retry)
// from hard ones (stop immediately and propagate).
type IsRetryable func(err error) bool

// Do runs fn up to Policy.MaxRetries+1 times, sleeping Backoff(n) between
// attempts, honoring ctx cancellation between attempts. It returns the last
// error if every attempt is exhausted or a non-retryable error is returned.
func Do(ctx context.Context, p Policy, retryable IsRetryable, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
	return lastErr
}
