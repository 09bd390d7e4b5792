// Package circuitbreaker implements the per-host circuit breaker of
// spec.md §4.8, grounded on the rolling-window failure accounting in
// internal/scraper/workers/limiter.go but corrected to genuine
// percentage-threshold semantics with a single-trial HalfOpen instead of
// the teacher's opossum-backed breaker that let unlimited calls through
// while half-open.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

// Config mirrors models.CircuitConfig; kept distinct so callers can
// construct breakers without importing the models package for plain values.
type Config = models.CircuitConfig

// Breaker is one per-host (or per-downstream) circuit breaker instance.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       models.CircuitState
	successes   int64
	failures    int64
	total       int64
	lastFailure *time.Time
	nextAttempt *time.Time
	halfOpenBusy bool
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = 5
	}
	if cfg.ErrorThresholdPercentage <= 0 {
		cfg.ErrorThresholdPercentage = 50
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if !cfg.Enabled {
		cfg.Enabled = true
	}
	return &Breaker{cfg: cfg, state: models.CircuitClosed}
}

// GetState returns the breaker's current state, resolving an expired Open
// window into HalfOpen as a side effect (matching the "open->half_open iff
// now >= last_failure+reset_timeout" invariant without a background timer).
func (b *Breaker) GetState() models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen(time.Now())
	return b.state
}

func (b *Breaker) maybeTransitionToHalfOpen(now time.Time) {
	if b.state == models.CircuitOpen && b.nextAttempt != nil && !now.Before(*b.nextAttempt) {
		b.state = models.CircuitHalfOpen
		b.halfOpenBusy = false
	}
}

// Execute runs fn guarded by the breaker: fast-fails with CircuitOpen while
// open, permits exactly one concurrent trial call while half-open, and
// records the outcome either way.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return utils.NewCircuitOpenError("circuit breaker is open")
	}
	err := fn()
	b.recordResult(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.maybeTransitionToHalfOpen(now)

	switch b.state {
	case models.CircuitOpen:
		return false
	case models.CircuitHalfOpen:
		if b.halfOpenBusy {
			return false
		}
		b.halfOpenBusy = true
		return true
	default:
		return true
	}
}

func (b *Breaker) recordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()

	if b.state == models.CircuitHalfOpen {
		b.halfOpenBusy = false
		if success {
			b.resetLocked()
		} else {
			b.openLocked(now)
		}
		return
	}

	b.total++
	if success {
		b.successes++
	} else {
		b.failures++
		b.lastFailure = &now
	}

	if b.total >= int64(b.cfg.MinimumRequests) {
		rate := float64(b.failures) / float64(b.total) * 100
		if rate >= b.cfg.ErrorThresholdPercentage {
			b.openLocked(now)
		}
	}
}

func (b *Breaker) openLocked(now time.Time) {
	b.state = models.CircuitOpen
	b.lastFailure = &now
	next := now.Add(b.cfg.ResetTimeout)
	b.nextAttempt = &next
	b.halfOpenBusy = false
}

func (b *Breaker) resetLocked() {
	b.state = models.CircuitClosed
	b.successes = 0
	b.failures = 0
	b.total = 0
	b.lastFailure = nil
	b.nextAttempt = nil
	b.halfOpenBusy = false
}

// Open forces the breaker open immediately (manual override).
func (b *Breaker) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openLocked(time.Now())
}

// Close forces the breaker closed and resets its counters.
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Reset is an alias of Close: counters at zero, state Closed.
func (b *Breaker) Reset() {
	b.Close()
}

// Enable turns the breaker's gating back on.
func (b *Breaker) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Enabled = true
}

// Disable lets every call through regardless of recorded failures.
func (b *Breaker) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Enabled = false
}

// GetStats returns a read-only snapshot of the breaker's counters.
func (b *Breaker) GetStats() models.CircuitStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen(time.Now())

	var rate float64
	if b.total > 0 {
		rate = float64(b.failures) / float64(b.total) * 100
	}
	return models.CircuitStats{
		State:       b.state,
		Successes:   b.successes,
		Failures:    b.failures,
		Total:       b.total,
		ErrorRate:   rate,
		LastFailure: b.lastFailure,
		NextAttempt: b.nextAttempt,
	}
}

// Registry is the process-wide map of per-key breakers (one per downstream
// host, per spec.md §5's "Shared resources" — breaker instances guard their
// own counters but the map itself needs its own lock).
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs a Registry that lazily creates a Breaker with cfg
// for every new key.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns (creating if necessary) the breaker for key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = New(r.cfg)
		r.breakers[key] = b
	}
	return b
}
