package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Strategy is a content-sufficiency validation strategy.
type Strategy interface {
	Name() string
	Validate(ctx context.Context, vctx models.ValidationContext) models.ValidationResult
}

// SufficiencyChecker is the minimal LLM capability the AI strategy needs;
// satisfied by internal/llmclient.Client so this package never imports it
// directly (strategies only need the one call they make).
type SufficiencyChecker interface {
	CheckSufficiency(ctx context.Context, html, text, task string) (sufficient bool, reason string, err error)
}

// HeuristicStrategy runs the fast rule subset only.
type HeuristicStrategy struct{ minScore float64 }

// NewHeuristicStrategy constructs the fast-path strategy.
func NewHeuristicStrategy(minScore float64) *HeuristicStrategy {
	return &HeuristicStrategy{minScore: minScore}
}

func (h *HeuristicStrategy) Name() string { return "heuristic" }

func (h *HeuristicStrategy) Validate(_ context.Context, vctx models.ValidationContext) models.ValidationResult {
	start := time.Now()
	all := BuiltinRules()
	rules := make([]Rule, 0, len(HeuristicRuleNames))
	for _, r := range all {
		if HeuristicRuleNames[r.Name] {
			rules = append(rules, r)
		}
	}

	checks := RunRules(vctx, rules)
	q := Score(checks, rules)
	sufficient, needsInteraction := Verdict(q, h.minScore)

	return buildResult("heuristic", checks, q, sufficient, needsInteraction, start)
}

// RuleBasedStrategy runs the entire non-AI rule library.
type RuleBasedStrategy struct{ minScore float64 }

// NewRuleBasedStrategy constructs the full-library strategy.
func NewRuleBasedStrategy(minScore float64) *RuleBasedStrategy {
	return &RuleBasedStrategy{minScore: minScore}
}

func (r *RuleBasedStrategy) Name() string { return "rule_based" }

func (r *RuleBasedStrategy) Validate(_ context.Context, vctx models.ValidationContext) models.ValidationResult {
	start := time.Now()
	rules := BuiltinRules()
	checks := RunRules(vctx, rules)
	q := Score(checks, rules)
	sufficient, needsInteraction := Verdict(q, r.minScore)
	return buildResult("rule_based", checks, q, sufficient, needsInteraction, start)
}

// AIStrategy makes a single LLM call with a sufficiency prompt.
type AIStrategy struct {
	checker SufficiencyChecker
}

// NewAIStrategy constructs the LLM-backed strategy.
func NewAIStrategy(checker SufficiencyChecker) *AIStrategy {
	return &AIStrategy{checker: checker}
}

func (a *AIStrategy) Name() string { return "ai" }

func (a *AIStrategy) Validate(ctx context.Context, vctx models.ValidationContext) models.ValidationResult {
	start := time.Now()
	if a.checker == nil {
		return models.ValidationResult{
			Sufficient:      false,
			Reason:          "no LLM checker configured",
			StrategyUsed:    "ai",
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	sufficient, reason, err := a.checker.CheckSufficiency(ctx, vctx.HTML, vctx.Text, vctx.TaskDescription)
	overall := 0.0
	if sufficient {
		overall = 1.0
	}
	result := models.ValidationResult{
		Sufficient:      sufficient,
		Reason:          reason,
		StrategyUsed:    "ai",
		QualityScore:    models.QualityScore{Overall: overall},
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Reason = fmt.Sprintf("AI sufficiency check failed: %v", err)
	}
	return result
}

// HybridStrategy runs the heuristic pass first; if its verdict is
// uncertain (needs_interaction) and an LLM checker is available, combines
// heuristic and AI scores at weights 0.4/0.6.
type HybridStrategy struct {
	heuristic *HeuristicStrategy
	ai        *AIStrategy
}

// NewHybridStrategy constructs the combined strategy.
func NewHybridStrategy(minScore float64, checker SufficiencyChecker) *HybridStrategy {
	return &HybridStrategy{
		heuristic: NewHeuristicStrategy(minScore),
		ai:        NewAIStrategy(checker),
	}
}

func (h *HybridStrategy) Name() string { return "hybrid" }

func (h *HybridStrategy) Validate(ctx context.Context, vctx models.ValidationContext) models.ValidationResult {
	start := time.Now()
	heuristicResult := h.heuristic.Validate(ctx, vctx)
	if !heuristicResult.NeedsInteraction || h.ai.checker == nil {
		heuristicResult.StrategyUsed = "hybrid"
		heuristicResult.ExecutionTimeMS = time.Since(start).Milliseconds()
		return heuristicResult
	}

	aiResult := h.ai.Validate(ctx, vctx)
	combined := 0.4*heuristicResult.QualityScore.Overall + 0.6*aiResult.QualityScore.Overall
	sufficient := combined >= minScoreDefault
	return models.ValidationResult{
		Sufficient:       sufficient,
		Reason:           fmt.Sprintf("hybrid score %.2f (heuristic %.2f, ai %.2f)", combined, heuristicResult.QualityScore.Overall, aiResult.QualityScore.Overall),
		NeedsInteraction: combined < needsInteractionBelow,
		QualityScore: models.QualityScore{
			Overall:      combined,
			Completeness: heuristicResult.QualityScore.Completeness,
			Relevance:    heuristicResult.QualityScore.Relevance,
			Structure:    heuristicResult.QualityScore.Structure,
			Quality:      heuristicResult.QualityScore.Quality,
		},
		StrategyUsed:    "hybrid",
		RulesChecked:    heuristicResult.RulesChecked,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

func buildResult(strategyName string, checks []models.RuleCheck, q models.QualityScore, sufficient, needsInteraction bool, start time.Time) models.ValidationResult {
	names := make([]string, 0, len(checks))
	metrics := make(map[string]float64, len(checks))
	var suggested []string
	for _, c := range checks {
		names = append(names, c.Name)
		metrics[c.Name] = c.Score
		if !c.Passed {
			suggested = append(suggested, c.Reason)
		}
	}

	reason := "content sufficient"
	if !sufficient {
		reason = "content insufficient"
		if len(suggested) > 0 {
			reason = suggested[0]
		}
	}

	return models.ValidationResult{
		Sufficient:       sufficient,
		Reason:           reason,
		NeedsInteraction: needsInteraction,
		SuggestedActions: suggested,
		QualityScore:     q,
		StrategyUsed:     strategyName,
		RulesChecked:     names,
		Metrics:          metrics,
		ExecutionTimeMS:  time.Since(start).Milliseconds(),
	}
}
