package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxRetries: 5, MaxDelay: time.Second}
	var last time.Duration
	for n := 0; n < 4; n++ {
		// jitter makes single samples noisy; average a few draws per step.
		var sum time.Duration
		const samples = 50
		for i := 0; i < samples; i++ {
			sum += p.Backoff(n)
		}
		avg := sum / samples
		if n > 0 {
			assert.Greater(t, avg, last)
		}
		last = avg
	}
}

func TestBackoffRespectsMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxRetries: 10, MaxDelay: 2 * time.Second}
	assert.LessOrEqual(t, p.Backoff(10), 2*time.Second)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxRetries: 3}, nil,
		func(ctx context.Context, attempt int) error {
			attempts++
			if attempt < 2 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	sentinel := errors.New("fatal")
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxRetries: 5},
		func(err error) bool { return !errors.Is(err, sentinel) },
		func(ctx context.Context, attempt int) error {
			attempts++
			return sentinel
		})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxRetries: 2}, nil,
		func(ctx context.Context, attempt int) error {
			attempts++
			return errors.New("always fails")
		})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, Policy{BaseDelay: time.Millisecond, MaxRetries: 3}, nil,
		func(ctx context.Context, attempt int) error {
			attempts++
			return errors.New("fail")
		})
	require.Error(t, err)
	assert.Equal(t, 0, attempts)
}
