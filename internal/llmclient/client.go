// Package llmclient implements the generic LLM capability of spec.md §6:
// {is_available, extract_data, chat, generate_summary}, plus the
// model-call primitive internal/extraction's LLM strategy drives. Grounded
// on internal/llm/providers/claude.go's anthropic-sdk-go request/response
// handling and internal/llm/manager.go's mutex-guarded start/health
// lifecycle, generalized from single-shot job-posting extraction to the
// four-method capability the orchestrator consumes.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/aeodev/aiscrape/internal/extraction"
	"github.com/aeodev/aiscrape/internal/fetcher"
	"github.com/aeodev/aiscrape/internal/llm/processors"
	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

// Config configures the LLM client.
type Config struct {
	APIKey      string
	Models      []string // stable preference order; first entry tried first
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// ChatMessage is one turn in a conversation passed to Chat.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// ExtractResult is extract_data's return shape.
type ExtractResult struct {
	Entities  []models.Entity
	Summary   string
	Success   bool
	Error     string
	ModelName string
}

// Client wraps an Anthropic-backed LLM provider behind the generic
// capability the orchestrator and extraction registry consume.
type Client struct {
	cfg         Config
	anthropic   anthropic.Client
	htmlCleaner *processors.HTMLCleaner
	logger      *logrus.Logger

	mu           sync.RWMutex
	healthy      bool
	lastGoodModel string // caches the most recently successful model name
}

// New constructs a Client. It does not perform a health check; call
// CheckHealth (or let the first call self-heal) to populate availability.
func New(cfg Config, logger *logrus.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{string(anthropic.ModelClaude3_7SonnetLatest)}
	}
	return &Client{
		cfg:         cfg,
		anthropic:   anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		htmlCleaner: processors.NewHTMLCleaner(),
		logger:      logger,
	}
}

// IsAvailable reports the client's last-known health, without making a call.
func (c *Client) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy && c.cfg.APIKey != ""
}

// CheckHealth makes a minimal call to confirm the configured API key works,
// updating the cached healthy flag.
func (c *Client) CheckHealth(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		c.setHealthy(false)
		return fmt.Errorf("LLM API key not configured")
	}
	_, err := c.callModel(ctx, c.modelPreference()[0], "Hello", 16)
	c.setHealthy(err == nil)
	return err
}

func (c *Client) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

func (c *Client) modelPreference() []string {
	c.mu.RLock()
	cached := c.lastGoodModel
	c.mu.RUnlock()
	if cached == "" {
		return c.cfg.Models
	}
	ordered := []string{cached}
	for _, m := range c.cfg.Models {
		if m != cached {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func (c *Client) rememberGoodModel(model string) {
	c.mu.Lock()
	c.lastGoodModel = model
	c.mu.Unlock()
}

// Call sends prompt to model and returns its raw text response, classified
// per the utils.CustomError taxonomy on failure. Satisfies
// internal/extraction.ModelCaller.
func (c *Client) Call(ctx context.Context, model, prompt string) (string, error) {
	return c.callModel(ctx, model, prompt, c.cfg.MaxTokens)
}

func (c *Client) callModel(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(c.cfg.Temperature)),
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: prompt}}},
			Role:    anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}
	if len(resp.Content) == 0 {
		return "", utils.NewLLMError("empty response from model")
	}
	c.rememberGoodModel(model)
	c.setHealthy(true)
	return resp.Content[0].AsText().Text, nil
}

// classifyAnthropicError maps the SDK's error into the taxonomy the
// extraction strategy's retry loop and the orchestrator both key off of.
func classifyAnthropicError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &utils.CustomError{Code: http.StatusTooManyRequests, Message: "LLM rate limited", Detail: msg}
	case strings.Contains(lower, "503") || strings.Contains(lower, "overloaded"):
		return &utils.CustomError{Code: http.StatusServiceUnavailable, Message: "LLM overloaded", Detail: msg}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not_found") || strings.Contains(lower, "not found"):
		return &utils.CustomError{Code: http.StatusNotFound, Message: "LLM model not found", Detail: msg}
	default:
		return utils.NewLLMError(msg)
	}
}

// ExtractData extracts typed entities relevant to task from content,
// trying each configured model name (falling back on 404) and retrying
// 503/429 with exponential backoff via internal/extraction.LLMStrategy.
func (c *Client) ExtractData(ctx context.Context, content, task string, entityTypes []models.EntityType) ExtractResult {
	cleaned := content
	if c.htmlCleaner != nil {
		if plain, err := c.htmlCleaner.CleanHTML(content); err == nil && plain != "" {
			cleaned = plain
		}
		if focused, err := c.htmlCleaner.ExtractMainContent(content); err == nil && focused != "" && len(focused) < len(cleaned) {
			cleaned = focused
		}
	}

	strategy := extraction.NewLLMStrategy(c, extraction.ProviderLimit{
		Provider:   "anthropic",
		Models:     c.modelPreference(),
		MaxContent: 150_000 * 3,
	})

	result := strategy.Extract(ctx, extraction.Context{Text: cleaned, TaskDescription: task, EntityTypes: entityTypes})
	return ExtractResult{
		Entities:  result.Entities,
		Summary:   summarizeEntities(result.Entities),
		Success:   result.Success,
		Error:     result.Error,
		ModelName: c.currentModelName(),
	}
}

func (c *Client) currentModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastGoodModel != "" {
		return c.lastGoodModel
	}
	return c.cfg.Models[0]
}

func summarizeEntities(entities []models.Entity) string {
	if len(entities) == 0 {
		return "no entities extracted"
	}
	return fmt.Sprintf("extracted %d entities", len(entities))
}

// Chat answers message given prior conversation history and a free-form
// context string (typically the originating job's extracted content).
func (c *Client) Chat(ctx context.Context, conversationContext string, history []ChatMessage, message string) (string, error) {
	var b strings.Builder
	if conversationContext != "" {
		b.WriteString("Context:\n")
		b.WriteString(conversationContext)
		b.WriteString("\n\n")
	}
	for _, h := range history {
		fmt.Fprintf(&b, "%s: %s\n", h.Role, h.Content)
	}
	fmt.Fprintf(&b, "user: %s", message)

	return c.callModel(ctx, c.modelPreference()[0], b.String(), c.cfg.MaxTokens)
}

var agentAnalysisFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type agentAnalysisPayload struct {
	HasRelevantData bool     `json:"has_relevant_data"`
	ExtractedData   []string `json:"extracted_data"`
	LinksToFollow   []int    `json:"links_to_follow"`
	Summary         string   `json:"summary"`
}

// AnalyzePage satisfies internal/fetcher.PageAnalyzer: given a visited
// page's text and unvisited link candidates, it asks the model whether the
// page carries data relevant to task and which links are worth following
// next. Defined here (not in internal/fetcher) to keep that package free of
// a concrete LLM dependency.
func (c *Client) AnalyzePage(ctx context.Context, task, pageText string, links []string, ajaxTriggers []string) (fetcher.AgentPageAnalysis, error) {
	prompt := buildAgentAnalysisPrompt(task, pageText, links, ajaxTriggers)
	text, err := c.callModel(ctx, c.modelPreference()[0], prompt, 1024)
	if err != nil {
		return fetcher.AgentPageAnalysis{}, err
	}

	raw := text
	if m := agentAnalysisFence.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}
	var payload agentAnalysisPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return fetcher.AgentPageAnalysis{}, fmt.Errorf("parse page analysis: %w", err)
	}

	return fetcher.AgentPageAnalysis{
		HasRelevantData: payload.HasRelevantData,
		ExtractedData:   payload.ExtractedData,
		LinksToFollow:   payload.LinksToFollow,
		Summary:         payload.Summary,
	}, nil
}

func buildAgentAnalysisPrompt(task, pageText string, links, ajaxTriggers []string) string {
	var b strings.Builder
	b.WriteString("You are guiding a web crawl toward a specific goal.\n")
	fmt.Fprintf(&b, "Goal: %s\n\n", task)
	b.WriteString("Page content (truncated):\n")
	b.WriteString(truncate(pageText, 6000))
	b.WriteString("\n\nCandidate links (index: url):\n")
	for i, l := range links {
		fmt.Fprintf(&b, "%d: %s\n", i, l)
	}
	if len(ajaxTriggers) > 0 {
		b.WriteString("\nAJAX triggers observed: ")
		b.WriteString(strings.Join(ajaxTriggers, ", "))
	}
	b.WriteString("\n\nRespond with ONLY a JSON object: {\"has_relevant_data\": bool, " +
		"\"extracted_data\": [string], \"links_to_follow\": [int], \"summary\": string}. " +
		"links_to_follow must be indices from the candidate list above, ordered by priority.")
	return b.String()
}

// DecideClicks satisfies internal/fetcher.ClickDecider: given a preview of
// the page and a set of clickable candidates, it returns the indices worth
// clicking, ordered by priority.
func (c *Client) DecideClicks(ctx context.Context, question, pagePreview string, candidates []fetcher.ClickCandidate) ([]int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Page preview:\n")
	b.WriteString(truncate(pagePreview, 4000))
	b.WriteString("\n\nClickable candidates (index: tag text):\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d: <%s> %q\n", i, cand.Tag, cand.Text)
	}
	b.WriteString("\nRespond with ONLY a JSON array of candidate indices worth clicking to reveal the answer, most promising first, e.g. [2, 0].")

	resp, err := c.callModel(ctx, c.modelPreference()[0], b.String(), 256)
	if err != nil {
		return nil, err
	}

	raw := resp
	if m := jsonArrayPattern.FindString(resp); m != "" {
		raw = m
	}
	var indices []int
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &indices); err != nil {
		return nil, fmt.Errorf("parse click decision: %w", err)
	}
	return indices, nil
}

var jsonArrayPattern = regexp.MustCompile(`\[[\d,\s]*\]`)

// CheckSufficiency satisfies internal/validator.SufficiencyChecker: it asks
// the model whether html/text already carries enough information to answer
// task, for the validator's AI and Hybrid strategies.
func (c *Client) CheckSufficiency(ctx context.Context, html, text, task string) (bool, string, error) {
	content := text
	if content == "" {
		content = html
	}
	prompt := fmt.Sprintf(
		"Task: %s\n\nContent:\n%s\n\nDoes this content contain enough information to complete the task? "+
			"Respond with ONLY a JSON object: {\"sufficient\": bool, \"reason\": string}.",
		task, truncate(content, 8000))

	resp, err := c.callModel(ctx, c.modelPreference()[0], prompt, 256)
	if err != nil {
		return false, "", err
	}

	raw := resp
	if m := agentAnalysisFence.FindStringSubmatch(resp); m != nil {
		raw = m[1]
	}
	var payload struct {
		Sufficient bool   `json:"sufficient"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return false, "", fmt.Errorf("parse sufficiency check: %w", err)
	}
	return payload.Sufficient, payload.Reason, nil
}

// GenerateSummary asks the model for a summary of content capped near maxLen characters.
func (c *Client) GenerateSummary(ctx context.Context, content string, maxLen int) (string, error) {
	prompt := fmt.Sprintf("Summarize the following content in no more than %d characters:\n\n%s", maxLen, content)
	text, err := c.callModel(ctx, c.modelPreference()[0], prompt, c.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen]
	}
	return text, nil
}
