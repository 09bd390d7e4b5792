package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

type stubStrategy struct {
	t         StrategyType
	available bool
	result    Result
}

func (s stubStrategy) Name() string                        { return string(s.t) }
func (s stubStrategy) Type() StrategyType                   { return s.t }
func (s stubStrategy) IsAvailable(_ context.Context) bool   { return s.available }
func (s stubStrategy) Extract(_ context.Context, _ Context) Result { return s.result }

func TestRegisterSetsFirstStrategyAsDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(stubStrategy{t: StrategyRuleBased, available: true}, false)
	assert.Equal(t, StrategyRuleBased, r.GetDefaultType())
}

func TestSetDefaultTypeRejectsUnregistered(t *testing.T) {
	r := NewRegistry()
	r.Register(stubStrategy{t: StrategyRuleBased, available: true}, true)
	assert.False(t, r.SetDefaultType(StrategyLLM))
	assert.True(t, r.SetDefaultType(StrategyRuleBased))
}

func TestExtractWithFallbackReturnsFirstSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(stubStrategy{t: StrategyLLM, available: true, result: Result{Success: false, Strategy: StrategyLLM}}, true)
	r.Register(stubStrategy{t: StrategyRuleBased, available: true, result: Result{Success: true, Strategy: StrategyRuleBased}}, false)

	result := r.ExtractWithFallback(context.Background(), Context{}, []StrategyType{StrategyLLM, StrategyRuleBased})
	assert.True(t, result.Success)
	assert.Equal(t, StrategyRuleBased, result.Strategy)
}

func TestExtractWithFallbackReturnsErrorWhenAllFail(t *testing.T) {
	r := NewRegistry()
	r.Register(stubStrategy{t: StrategyLLM, available: true, result: Result{Success: false}}, true)
	result := r.ExtractWithFallback(context.Background(), Context{}, []StrategyType{StrategyLLM})
	assert.False(t, result.Success)
	assert.Equal(t, StrategyCustom, result.Strategy)
}

func TestExtractWithFallbackSkipsUnavailableStrategies(t *testing.T) {
	r := NewRegistry()
	r.Register(stubStrategy{t: StrategyLLM, available: false}, true)
	r.Register(stubStrategy{t: StrategyRuleBased, available: true, result: Result{Success: true, Strategy: StrategyRuleBased}}, false)

	result := r.ExtractWithFallback(context.Background(), Context{}, []StrategyType{StrategyLLM, StrategyRuleBased})
	assert.True(t, result.Success)
}

func TestDedupEntitiesDropsSameTypeAndData(t *testing.T) {
	entities := []models.Entity{
		{Type: models.EntityContact, Data: map[string]interface{}{"email": "a@b.com"}},
		{Type: models.EntityContact, Data: map[string]interface{}{"email": "a@b.com"}},
		{Type: models.EntityContact, Data: map[string]interface{}{"email": "c@d.com"}},
	}
	out := DedupEntities(entities)
	require.Len(t, out, 2)
}
