package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/internal/logging"
)

func newTestManager() *Manager {
	return NewManager(Config{Prefix: "test:", Mode: ModeEnabled, DefaultTTL: time.Minute}, logging.GetGlobalLogger())
}

func TestSetThenGetWithinTTL(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	m.Set(context.Background(), "k1", "v1", 50*time.Millisecond)
	res := m.Get(context.Background(), "k1")
	require.True(t, res.FromCache)
	assert.Equal(t, "v1", res.Data)
}

func TestGetAfterTTLEvicts(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	m.Set(context.Background(), "k2", "v2", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	res := m.Get(context.Background(), "k2")
	assert.False(t, res.FromCache)
	assert.Nil(t, res.Data)

	m.mu.RLock()
	_, stillPresent := m.mem["test:k2"]
	m.mu.RUnlock()
	assert.False(t, stillPresent)
}

func TestSetReplacesNotDuplicates(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	m.Set(context.Background(), "k3", "first", time.Minute)
	m.Set(context.Background(), "k3", "second", time.Minute)

	res := m.Get(context.Background(), "k3")
	require.True(t, res.FromCache)
	assert.Equal(t, "second", res.Data)

	m.mu.RLock()
	assert.Len(t, m.mem, 1)
	m.mu.RUnlock()
}

func TestDisabledModeAlwaysMisses(t *testing.T) {
	m := NewManager(Config{Prefix: "test:", Mode: ModeDisabled}, logging.GetGlobalLogger())
	defer m.Close()

	m.Set(context.Background(), "k4", "v4", time.Minute)
	res := m.Get(context.Background(), "k4")
	assert.False(t, res.FromCache)
}

func TestReadOnlyModeDoesNotWrite(t *testing.T) {
	m := NewManager(Config{Prefix: "test:", Mode: ModeReadOnly}, logging.GetGlobalLogger())
	defer m.Close()

	m.Set(context.Background(), "k5", "v5", time.Minute)
	res := m.Get(context.Background(), "k5")
	assert.False(t, res.FromCache)
}

func TestClearWipesMemoryTier(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	m.Set(context.Background(), "k6", "v6", time.Minute)
	m.Clear(context.Background(), "")

	res := m.Get(context.Background(), "k6")
	assert.False(t, res.FromCache)
}
