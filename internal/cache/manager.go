// Package cache implements the two-tier cache manager: Redis as the primary
// store with an in-memory TTL map as fallback, grounded on the teacher's
// pkg/utils redis client (lazy connect, exponential retry) but generalized
// from a single conversation-history cache to the full get/set/delete/clear/
// stats/clean_expired contract of spec.md §4.6.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aeodev/aiscrape/internal/logging/types"
	"github.com/aeodev/aiscrape/pkg/models"
)

// Mode is the operating mode of the cache manager.
type Mode string

const (
	ModeEnabled  Mode = "enabled"
	ModeDisabled Mode = "disabled"
	ModeReadOnly Mode = "read_only"
	ModeBypass   Mode = "bypass"
)

// Config configures a Manager.
type Config struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	Prefix        string
	DefaultTTL    time.Duration
	Mode          Mode
}

// Manager is the process-wide cache singleton.
type Manager struct {
	cfg    Config
	logger types.Logger

	rdb        *redis.Client
	redisReady bool

	mu     sync.RWMutex
	mem    map[string]models.CacheEntry
	hits   int64
	misses int64

	cleanupStop chan struct{}
}

// NewManager constructs a Manager and starts its lazy Redis connection.
func NewManager(cfg Config, logger types.Logger) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = ModeEnabled
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		mem:         make(map[string]models.CacheEntry),
		cleanupStop: make(chan struct{}),
	}

	if cfg.Mode != ModeDisabled && cfg.RedisURL != "" {
		m.connect()
	}

	go m.cleanupLoop()
	return m
}

func (m *Manager) connect() {
	opts, err := redis.ParseURL(m.cfg.RedisURL)
	if err != nil {
		opts = &redis.Options{Addr: m.cfg.RedisURL}
	}
	if m.cfg.RedisPassword != "" {
		opts.Password = m.cfg.RedisPassword
	}
	if m.cfg.RedisDB != 0 {
		opts.DB = m.cfg.RedisDB
	}
	opts.MaxRetries = 3
	// enableOfflineQueue=false equivalent: fail fast instead of queuing commands
	// while disconnected; go-redis has no offline queue to begin with, so the
	// lazy-connect health_check below substitutes for it.

	m.rdb = redis.NewClient(opts)

	go func() {
		for attempt := 0; ; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := m.rdb.Ping(ctx).Err()
			cancel()
			if err == nil {
				m.mu.Lock()
				m.redisReady = true
				m.mu.Unlock()
				m.logger.Info("cache: redis connection established", nil)
				return
			}
			delay := time.Duration(50*(attempt+1)) * time.Millisecond
			if delay > 2*time.Second {
				delay = 2 * time.Second
			}
			select {
			case <-m.cleanupStop:
				return
			case <-time.After(delay):
			}
		}
	}()
}

// IsRedisAvailable reports whether the connected-and-ready check passes.
func (m *Manager) IsRedisAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rdb != nil && m.redisReady
}

// HealthCheck pings Redis directly, independent of the cached readiness flag.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	if m.rdb == nil {
		return false
	}
	return m.rdb.Ping(ctx).Err() == nil
}

func (m *Manager) physicalKey(key string) string {
	return m.cfg.Prefix + key
}

// Get performs the read path: Disabled short-circuits to a miss; otherwise
// Redis is consulted (unless Bypass) and falls through to the in-memory map
// on a Redis error or when the key only lives in memory.
func (m *Manager) Get(ctx context.Context, key string) models.CacheGetResult {
	if m.cfg.Mode == ModeDisabled {
		return models.CacheGetResult{FromCache: false}
	}

	pk := m.physicalKey(key)

	if m.cfg.Mode != ModeBypass && m.IsRedisAvailable() {
		raw, err := m.rdb.Get(ctx, pk).Result()
		if err == nil {
			var entry models.CacheEntry
			if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr == nil {
				if entry.Expired(time.Now()) {
					_ = m.rdb.Del(ctx, pk).Err()
				} else {
					m.recordHit()
					return models.CacheGetResult{Data: entry.Value, FromCache: true, TTL: ttlPointer(entry)}
				}
			}
		} else if err != redis.Nil {
			m.logger.Warn("cache: redis get failed, falling back to memory", map[string]interface{}{"error": err.Error()})
		}
	}

	m.mu.Lock()
	entry, ok := m.mem[pk]
	if ok && entry.Expired(time.Now()) {
		delete(m.mem, pk)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		m.recordMiss()
		return models.CacheGetResult{FromCache: false}
	}
	m.recordHit()
	return models.CacheGetResult{Data: entry.Value, FromCache: true, TTL: ttlPointer(entry)}
}

func ttlPointer(e models.CacheEntry) *time.Duration {
	if e.ExpiresAt == nil {
		return nil
	}
	d := time.Until(*e.ExpiresAt)
	return &d
}

func (m *Manager) recordHit() {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *Manager) recordMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

// Set performs the write path: Disabled/ReadOnly are no-ops; otherwise try
// Redis with a TTL-aware SETEX and fall back to the in-memory map on error.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if m.cfg.Mode == ModeDisabled || m.cfg.Mode == ModeReadOnly {
		return
	}
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	now := time.Now()
	expires := now.Add(ttl)
	entry := models.CacheEntry{Value: value, CreatedAt: now, ExpiresAt: &expires}
	pk := m.physicalKey(key)

	if m.cfg.Mode != ModeBypass && m.IsRedisAvailable() {
		raw, err := json.Marshal(entry)
		if err == nil {
			if err := m.rdb.SetEx(ctx, pk, raw, ttl).Err(); err == nil {
				return
			}
			m.logger.Warn("cache: redis set failed, falling back to memory", map[string]interface{}{"error": err.Error()})
		}
	}

	m.mu.Lock()
	m.mem[pk] = entry
	m.mu.Unlock()
}

// Delete removes a key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) {
	pk := m.physicalKey(key)
	if m.IsRedisAvailable() {
		_ = m.rdb.Del(ctx, pk).Err()
	}
	m.mu.Lock()
	delete(m.mem, pk)
	m.mu.Unlock()
}

// Clear removes every key matching pattern (glob-style "*"), or every key
// under the prefix when pattern is empty. Redis uses KEYS+DEL; the in-memory
// map cannot glob, so a pattern ending in "*" deletes memory keys by prefix
// and any other non-empty pattern wipes the whole memory tier.
func (m *Manager) Clear(ctx context.Context, pattern string) {
	if m.IsRedisAvailable() {
		match := m.cfg.Prefix + "*"
		if pattern != "" {
			match = m.cfg.Prefix + pattern
		}
		keys, err := m.rdb.Keys(ctx, match).Result()
		if err == nil && len(keys) > 0 {
			_ = m.rdb.Del(ctx, keys...).Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pattern == "" {
		m.mem = make(map[string]models.CacheEntry)
		return
	}
	// memory store can't glob; approximate with a prefix match when the
	// pattern is a plain prefix ending in "*", else wipe everything.
	if strings.HasSuffix(pattern, "*") {
		prefix := m.cfg.Prefix + strings.TrimSuffix(pattern, "*")
		for k := range m.mem {
			if strings.HasPrefix(k, prefix) {
				delete(m.mem, k)
			}
		}
		return
	}
	m.mem = make(map[string]models.CacheEntry)
}

// GetStats reports hit/miss counters and tier availability.
func (m *Manager) GetStats() models.CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CacheStats{
		Hits:        m.hits,
		Misses:      m.misses,
		MemoryItems: len(m.mem),
		RedisUp:     m.rdb != nil && m.redisReady,
	}
}

// CleanExpired sweeps the in-memory tier for expired entries. Redis expires
// keys natively via SETEX and needs no sweep.
func (m *Manager) CleanExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.mem {
		if e.Expired(now) {
			delete(m.mem, k)
			removed++
		}
	}
	return removed
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.cleanupStop:
			return
		case <-ticker.C:
			m.CleanExpired()
		}
	}
}

// Close stops the background sweep and closes the Redis connection.
func (m *Manager) Close() error {
	close(m.cleanupStop)
	if m.rdb != nil {
		return m.rdb.Close()
	}
	return nil
}

// ScrapeKey builds the "scrape:{url}:{scraper_type}:default" cache key shape.
func ScrapeKey(url, scraperType string) string {
	return fmt.Sprintf("scrape:%s:%s:default", url, scraperType)
}

// ValidationKey builds the "validation:{sha256}:{strategy}" cache key shape
// from the validator's (html, task, url) triple.
func ValidationKey(html, task, url, strategy string) string {
	sum := sha256.Sum256([]byte(html + ":" + task + ":" + url))
	return fmt.Sprintf("validation:%s:%s", hex.EncodeToString(sum[:]), strategy)
}

// RouteKey builds the "route:{method}:{url}:{query_json}" cache key shape.
func RouteKey(method, url, queryJSON string) string {
	return fmt.Sprintf("route:%s:%s:%s", method, url, queryJSON)
}
