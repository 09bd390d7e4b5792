package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func richContext() models.ValidationContext {
	html := `<html><body>
		<main>
			<article>
				<h1>Engineering Careers</h1>
				<p>We are hiring engineers for multiple roles across the company.</p>
				<p>Apply today to join our engineering team and build great products.</p>
			</article>
		</main>
	</body></html>`
	return models.ValidationContext{
		HTML:            html,
		Text:            "Engineering Careers We are hiring engineers for multiple roles across the company. Apply today to join our engineering team and build great products.",
		TaskDescription: "engineering careers hiring",
		PageTitle:       "Engineering Careers",
	}
}

func TestHeuristicStrategyPassesRichContent(t *testing.T) {
	s := NewHeuristicStrategy(minScoreDefault)
	result := s.Validate(context.Background(), richContext())
	assert.Equal(t, "heuristic", result.StrategyUsed)
	assert.True(t, result.Sufficient)
}

func TestRuleBasedStrategyRunsAllRules(t *testing.T) {
	s := NewRuleBasedStrategy(minScoreDefault)
	result := s.Validate(context.Background(), richContext())
	assert.Len(t, result.RulesChecked, len(BuiltinRules()))
}

func TestRuleBasedStrategyFailsSparseContent(t *testing.T) {
	s := NewRuleBasedStrategy(minScoreDefault)
	result := s.Validate(context.Background(), models.ValidationContext{HTML: "<p>hi</p>", Text: "hi"})
	assert.False(t, result.Sufficient)
}

type stubChecker struct {
	sufficient bool
	reason     string
}

func (s stubChecker) CheckSufficiency(_ context.Context, _, _, _ string) (bool, string, error) {
	return s.sufficient, s.reason, nil
}

func TestAIStrategyReturnsCheckerVerdict(t *testing.T) {
	s := NewAIStrategy(stubChecker{sufficient: true, reason: "looks complete"})
	result := s.Validate(context.Background(), richContext())
	assert.True(t, result.Sufficient)
	assert.Equal(t, "looks complete", result.Reason)
}

func TestHybridStrategySkipsAIWhenHeuristicConfident(t *testing.T) {
	s := NewHybridStrategy(minScoreDefault, stubChecker{sufficient: false})
	result := s.Validate(context.Background(), richContext())
	require.Equal(t, "hybrid", result.StrategyUsed)
	assert.True(t, result.Sufficient)
}

func TestHybridStrategyCombinesWhenUncertain(t *testing.T) {
	s := NewHybridStrategy(minScoreDefault, stubChecker{sufficient: true, reason: "ai says fine"})
	sparse := models.ValidationContext{HTML: `<div data-load="true"></div>`, Text: "Lorem ipsum", TaskDescription: "pricing plans"}
	result := s.Validate(context.Background(), sparse)
	assert.Equal(t, "hybrid", result.StrategyUsed)
	assert.Contains(t, result.Reason, "hybrid score")
}
