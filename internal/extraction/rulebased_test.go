package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestRuleBasedStrategyExtractsFromSelector(t *testing.T) {
	s := NewRuleBasedStrategy([]RuleSet{
		{
			Name: "contact", Priority: 10, Enabled: true,
			Rules: []Rule{
				{Name: "email", EntityType: models.EntityContact, Selector: ".email", Transform: "trim"},
			},
		},
	})

	html := `<html><body><span class="email">  jobs@example.com </span></body></html>`
	result := s.Extract(context.Background(), Context{HTML: html})
	require.True(t, result.Success)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "jobs@example.com", result.Entities[0].Data["email"])
}

func TestRuleBasedStrategyFailsWhenRequiredRuleEmpty(t *testing.T) {
	s := NewRuleBasedStrategy([]RuleSet{
		{
			Name: "strict", Priority: 10, Enabled: true,
			Rules: []Rule{
				{Name: "must-have", EntityType: models.EntityCompany, Selector: ".nonexistent", Required: true},
			},
		},
	})
	result := s.Extract(context.Background(), Context{HTML: "<html><body></body></html>"})
	assert.False(t, result.Success)
}

func TestRuleBasedStrategyHigherPriorityRunsFirst(t *testing.T) {
	s := NewRuleBasedStrategy([]RuleSet{
		{Name: "low", Priority: 1, Enabled: true, Rules: []Rule{{Name: "a", EntityType: models.EntityCustom, Selector: ".x"}}},
		{Name: "high", Priority: 10, Enabled: true, Rules: []Rule{{Name: "b", EntityType: models.EntityCustom, Selector: ".x"}}},
	})
	html := `<div class="x">value</div>`
	result := s.Extract(context.Background(), Context{HTML: html})
	require.True(t, result.Success)
	require.NotEmpty(t, result.Entities)
	assert.Equal(t, "rule:b", result.Entities[0].Source)
}

func TestParseNumberTransformRejectsNonNumeric(t *testing.T) {
	assert.Equal(t, "", applyTransform("abc", "parseNumber"))
	assert.Equal(t, "42", applyTransform("$42", "parseNumber"))
}

func TestExtractDomainTransform(t *testing.T) {
	assert.Equal(t, "example.com", applyTransform("https://example.com/page", "extractDomain"))
}
