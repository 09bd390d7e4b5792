package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

// ModelCaller is the single capability the LLM strategy needs: send a
// prompt to one named model and get back its raw text response, or a
// *utils.CustomError classified per the taxonomy (503/429/404/other) so
// the strategy's retry loop can react correctly.
type ModelCaller interface {
	Call(ctx context.Context, model, prompt string) (string, error)
}

// ProviderLimit is a provider's approximate max input size, expressed in
// characters (spec.md's truncation budgets are given in tokens; this
// applies the teacher's ~3-chars-per-token rule of thumb).
type ProviderLimit struct {
	Provider   string
	Models     []string // tried in order; 404 on one falls through to the next
	MaxContent int      // characters, after the 3-chars/token conversion
}

// DefaultProviderLimits mirrors spec.md §4.4's stated per-provider budgets.
func DefaultProviderLimits() []ProviderLimit {
	return []ProviderLimit{
		{Provider: "anthropic", MaxContent: 150_000 * 3},
		{Provider: "openai", MaxContent: 100_000 * 3},
		{Provider: "gemini", MaxContent: 8_000 * 3},
	}
}

// LLMStrategy extracts entities via a single LLM call per spec.md §4.4,
// grounded on internal/llm/providers/claude.go's request/response shape
// but generalized from job-posting extraction to typed Entity extraction,
// and given the genuinely exponential retry/backoff internal/retry.go
// corrects the teacher's worker pool to.
type LLMStrategy struct {
	caller ModelCaller
	limit  ProviderLimit
}

// NewLLMStrategy constructs a strategy bound to one provider's caller and limit.
func NewLLMStrategy(caller ModelCaller, limit ProviderLimit) *LLMStrategy {
	return &LLMStrategy{caller: caller, limit: limit}
}

func (s *LLMStrategy) Name() string      { return "llm-" + s.limit.Provider }
func (s *LLMStrategy) Type() StrategyType { return StrategyLLM }

func (s *LLMStrategy) IsAvailable(_ context.Context) bool {
	return s.caller != nil && len(s.limit.Models) > 0
}

func (s *LLMStrategy) Extract(ctx context.Context, ectx Context) Result {
	start := time.Now()
	content := truncate(contentFor(ectx), s.limit.MaxContent)
	prompt := buildExtractionPrompt(ectx, content)

	var lastErr error
	for _, model := range s.limit.Models {
		text, err := s.callWithBackoff(ctx, model, prompt)
		if err != nil {
			if utils.IsCode(err, http.StatusNotFound) {
				lastErr = err
				continue // try the next model name
			}
			return Result{Success: false, Strategy: StrategyLLM, Error: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
		}

		entities, parseErr := parseLLMResponse(text)
		if parseErr != nil {
			return Result{Success: false, Strategy: StrategyLLM, Error: parseErr.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
		}
		return Result{
			Success:         true,
			Entities:        entities,
			Confidence:      averageConfidence(entities),
			Strategy:        StrategyLLM,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
			Metadata:        map[string]interface{}{"model": model, "response": text},
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no model configured for provider %s", s.limit.Provider)
	}
	return Result{Success: false, Strategy: StrategyLLM, Error: lastErr.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
}

// callWithBackoff retries on 503 (2ⁿ·1s) and 429 (2ⁿ·2s) up to 3 attempts;
// any other error (including 404, handled by the caller) propagates immediately.
func (s *LLMStrategy) callWithBackoff(ctx context.Context, model, prompt string) (string, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := s.caller.Call(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var base time.Duration
		switch {
		case utils.IsCode(err, http.StatusServiceUnavailable):
			base = time.Second
		case utils.IsCode(err, http.StatusTooManyRequests):
			base = 2 * time.Second
		default:
			return "", err
		}

		if attempt == maxAttempts-1 {
			break
		}
		delay := base * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func contentFor(ectx Context) string {
	if ectx.Text != "" {
		return ectx.Text
	}
	if ectx.Markdown != "" {
		return ectx.Markdown
	}
	return ectx.HTML
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func buildExtractionPrompt(ectx Context, content string) string {
	var typesList string
	if len(ectx.EntityTypes) > 0 {
		names := make([]string, len(ectx.EntityTypes))
		for i, t := range ectx.EntityTypes {
			names[i] = string(t)
		}
		typesList = strings.Join(names, ", ")
	} else {
		typesList = "any relevant entities"
	}

	return fmt.Sprintf(`Extract structured information from the page content below relevant to this task: %q

Page URL: %s
Target entity types: %s

Return ONLY a JSON object of the form:
{"summary": "one paragraph describing what was found", "entities": [{"type": "Company|Person|Product|Article|Contact|Pricing|Custom", "data": {...}, "confidence": 0.0-1.0}]}

PAGE CONTENT:
%s`, ectx.TaskDescription, ectx.URL, typesList, content)
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

type llmExtractionResponse struct {
	Summary  string `json:"summary"`
	Entities []struct {
		Type       string                 `json:"type"`
		Data       map[string]interface{} `json:"data"`
		Confidence float64                `json:"confidence"`
	} `json:"entities"`
}

// parseLLMResponse defensively parses the model's text: strips code
// fences, extracts the outermost {...}, normalizes entity types, and
// clamps confidence.
func parseLLMResponse(text string) ([]models.Entity, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	match := jsonObjectPattern.FindString(cleaned)
	if match == "" {
		return nil, fmt.Errorf("no JSON object found in LLM response")
	}

	var parsed llmExtractionResponse
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response JSON: %w", err)
	}

	entities := make([]models.Entity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		entities = append(entities, models.Entity{
			Type:       models.NormalizeEntityType(e.Type),
			Data:       e.Data,
			Confidence: models.ClampConfidence(e.Confidence),
			Source:     "llm",
		})
	}
	return entities, nil
}
