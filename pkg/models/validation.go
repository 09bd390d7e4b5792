package models

// ValidationContext is the tuple every validation strategy and rule receives.
type ValidationContext struct {
	HTML            string
	Text            string
	Markdown        string
	URL             string
	TaskDescription string
	PageTitle       string
	ContentType     string
}

// QualityScore is the weighted-bin breakdown behind a sufficiency verdict.
type QualityScore struct {
	Overall      float64 `json:"overall"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Structure    float64 `json:"structure"`
	Quality      float64 `json:"quality"`
}

// RuleCheck is one named rule's outcome, kept for ValidationResult.RulesChecked.
type RuleCheck struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ValidationResult is the verdict a content validator strategy produces.
type ValidationResult struct {
	Sufficient       bool              `json:"sufficient"`
	Reason           string            `json:"reason"`
	NeedsInteraction bool              `json:"needs_interaction"`
	SuggestedActions []string          `json:"suggested_actions,omitempty"`
	QualityScore     QualityScore      `json:"quality_score"`
	StrategyUsed     string            `json:"strategy_used"`
	RulesChecked     []string          `json:"rules_checked"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	ExecutionTimeMS  int64             `json:"execution_time_ms"`
}
