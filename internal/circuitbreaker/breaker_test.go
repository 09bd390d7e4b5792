package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func cfg() Config {
	return Config{
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Millisecond,
		MonitoringPeriod:         time.Minute,
		MinimumRequests:          5,
		Enabled:                  true,
	}
}

func TestOpensAfterThresholdAndRecovers(t *testing.T) {
	b := New(cfg())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}

	assert.Equal(t, models.CircuitOpen, b.GetState())

	err := b.Execute(func() error { return nil })
	assert.Error(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, models.CircuitHalfOpen, b.GetState())

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, models.CircuitClosed, b.GetState())

	stats := b.GetStats()
	assert.Equal(t, int64(0), stats.Total)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(cfg())
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, models.CircuitHalfOpen, b.GetState())

	err := b.Execute(func() error { return errors.New("still failing") })
	assert.Error(t, err)
	assert.Equal(t, models.CircuitOpen, b.GetState())
}

func TestResetZerosCounters(t *testing.T) {
	b := New(cfg())
	_ = b.Execute(func() error { return errors.New("x") })
	b.Reset()
	stats := b.GetStats()
	assert.Equal(t, models.CircuitClosed, stats.State)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Equal(t, int64(0), stats.Total)
}

func TestRegistryReusesBreakerPerKey(t *testing.T) {
	r := NewRegistry(cfg())
	a := r.Get("host-a")
	b := r.Get("host-a")
	assert.Same(t, a, b)

	c := r.Get("host-b")
	assert.NotSame(t, a, c)
}
