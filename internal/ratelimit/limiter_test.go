package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeniesOverTheWindow(t *testing.T) {
	l := New()
	cfg := Config{WindowMS: 1000, MaxRequests: 3, Enabled: true}

	for i := 0; i < 3; i++ {
		res := l.CheckLimit("K", cfg)
		assert.True(t, res.Allowed)
	}

	res4 := l.CheckLimit("K", cfg)
	assert.False(t, res4.Allowed)
	res5 := l.CheckLimit("K", cfg)
	assert.False(t, res5.Allowed)
	assert.Greater(t, res5.RetryAfter, time.Duration(0))
}

func TestWindowSlidesOpenAfterExpiry(t *testing.T) {
	l := New()
	cfg := Config{WindowMS: 30, MaxRequests: 1, Enabled: true}

	first := l.CheckLimit("K2", cfg)
	assert.True(t, first.Allowed)

	second := l.CheckLimit("K2", cfg)
	assert.False(t, second.Allowed)

	time.Sleep(40 * time.Millisecond)
	third := l.CheckLimit("K2", cfg)
	assert.True(t, third.Allowed)
}

func TestDisabledAlwaysAllows(t *testing.T) {
	l := New()
	cfg := Config{WindowMS: 1000, MaxRequests: 1, Enabled: false}
	for i := 0; i < 5; i++ {
		assert.True(t, l.CheckLimit("K3", cfg).Allowed)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	cfg := Config{WindowMS: 1000, MaxRequests: 1, Enabled: true}
	assert.True(t, l.CheckLimit("a", cfg).Allowed)
	assert.True(t, l.CheckLimit("b", cfg).Allowed)
	assert.False(t, l.CheckLimit("a", cfg).Allowed)
}
