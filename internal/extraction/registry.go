// Package extraction implements the strategy registry of spec.md §4.4:
// an LLM strategy (one per provider, shared base), a rule-based strategy
// evaluating named rule sets, and a cosine-similarity strategy, unified
// behind a Strategy interface with a fallback algorithm, grounded on
// internal/llm/factory.go's provider-switch shape for the registry and on
// internal/llm/providers/claude.go for the LLM strategy's retry/backoff.
package extraction

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aeodev/aiscrape/pkg/models"
)

// StrategyType names a registered extraction strategy.
type StrategyType string

const (
	StrategyLLM        StrategyType = "llm"
	StrategyRuleBased   StrategyType = "rule_based"
	StrategyCosine      StrategyType = "cosine_similarity"
	StrategyCustom      StrategyType = "custom"
)

// Context is the tuple every strategy receives.
type Context struct {
	HTML            string
	Markdown        string
	Text            string
	URL             string
	TaskDescription string
	EntityTypes     []models.EntityType
}

// Result is one strategy invocation's outcome.
type Result struct {
	Entities        []models.Entity
	Success         bool
	Confidence      float64
	Strategy        StrategyType
	ExecutionTimeMS int64
	Error           string
	Metadata        map[string]interface{}
}

// Strategy is one pluggable extraction backend.
type Strategy interface {
	Name() string
	Type() StrategyType
	IsAvailable(ctx context.Context) bool
	Extract(ctx context.Context, ectx Context) Result
}

// Stats summarizes registry-wide extraction activity.
type Stats struct {
	Registered map[StrategyType]bool `json:"registered"`
	DefaultType StrategyType         `json:"default_type"`
	TotalCalls  int64                `json:"total_calls"`
	Successes   int64                `json:"successes"`
}

// Registry holds the set of registered extraction strategies plus a
// default to use when the caller doesn't name one.
type Registry struct {
	mu          sync.RWMutex
	strategies  map[StrategyType]Strategy
	defaultType StrategyType

	totalCalls int64
	successes  int64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[StrategyType]Strategy)}
}

// Register adds strategy to the registry, optionally making it the default.
func (r *Registry) Register(strategy Strategy, setDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strategy.Type()] = strategy
	if setDefault || r.defaultType == "" {
		r.defaultType = strategy.Type()
	}
}

// Unregister removes a strategy by type.
func (r *Registry) Unregister(t StrategyType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, t)
	if r.defaultType == t {
		r.defaultType = ""
	}
}

// Get returns the strategy registered for t, or nil.
func (r *Registry) Get(t StrategyType) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[t]
}

// GetAvailable returns every registered strategy currently reporting
// available, in no particular order.
func (r *Registry) GetAvailable(ctx context.Context) []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if s.IsAvailable(ctx) {
			out = append(out, s)
		}
	}
	return out
}

// GetDefaultType returns the registry's current default strategy type.
func (r *Registry) GetDefaultType() StrategyType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultType
}

// SetDefaultType updates the default, rejecting an unregistered type.
func (r *Registry) SetDefaultType(t StrategyType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[t]; !ok {
		return false
	}
	r.defaultType = t
	return true
}

// Clear removes every registered strategy and resets the default.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = make(map[StrategyType]Strategy)
	r.defaultType = ""
}

// GetStats returns a snapshot of registry-wide call accounting.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registered := make(map[StrategyType]bool, len(r.strategies))
	for t := range r.strategies {
		registered[t] = true
	}
	return Stats{
		Registered:  registered,
		DefaultType: r.defaultType,
		TotalCalls:  r.totalCalls,
		Successes:   r.successes,
	}
}

// Extract runs one named strategy type (or the registry default if t is
// empty), recording call/success counters.
func (r *Registry) Extract(ctx context.Context, ectx Context, t StrategyType) Result {
	if t == "" {
		t = r.GetDefaultType()
	}
	strategy := r.Get(t)
	if strategy == nil {
		return errorResult(StrategyCustom, "no strategy registered for requested type")
	}
	return r.run(ctx, strategy, ectx)
}

// ExtractWithFallback tries each type in preferredOrder that is registered
// and available, returning the first success=true result. If none of the
// preferred types succeed, it tries any remaining available strategies. If
// everything fails, it returns an error Result with strategy Custom.
func (r *Registry) ExtractWithFallback(ctx context.Context, ectx Context, preferredOrder []StrategyType) Result {
	tried := make(map[StrategyType]bool)

	for _, t := range preferredOrder {
		strategy := r.Get(t)
		if strategy == nil || tried[t] || !strategy.IsAvailable(ctx) {
			continue
		}
		tried[t] = true
		result := r.run(ctx, strategy, ectx)
		if result.Success {
			return result
		}
	}

	for _, strategy := range r.GetAvailable(ctx) {
		if tried[strategy.Type()] {
			continue
		}
		tried[strategy.Type()] = true
		result := r.run(ctx, strategy, ectx)
		if result.Success {
			return result
		}
	}

	return errorResult(StrategyCustom, "all extraction strategies failed")
}

func (r *Registry) run(ctx context.Context, strategy Strategy, ectx Context) Result {
	result := strategy.Extract(ctx, ectx)

	r.mu.Lock()
	r.totalCalls++
	if result.Success {
		r.successes++
	}
	r.mu.Unlock()

	return result
}

func errorResult(t StrategyType, errMsg string) Result {
	return Result{Success: false, Strategy: t, Error: errMsg}
}

// DedupEntities removes entities sharing the same {type}:{canonical json(data)} key.
func DedupEntities(entities []models.Entity) []models.Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		key := dedupKey(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func dedupKey(e models.Entity) string {
	canonical, err := json.Marshal(canonicalMap(e.Data))
	if err != nil {
		canonical = []byte("{}")
	}
	return string(e.Type) + ":" + string(canonical)
}

// canonicalMap substitutes an empty map for nil and otherwise returns data
// unchanged; the stable ordering comes from encoding/json, which sorts map
// keys when marshaling a map[string]interface{}.
func canonicalMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}
