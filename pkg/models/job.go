package models

import "time"

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// legalTransitions enumerates the only status pairs the orchestrator may apply.
var legalTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusQueued:  {JobStatusRunning: true, JobStatusCancelled: true},
	JobStatusRunning: {JobStatusCompleted: true, JobStatusFailed: true, JobStatusCancelled: true},
}

// CanTransition reports whether from->to is a legal status transition.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true // idempotent no-op, not an error
	}
	return legalTransitions[from][to]
}

// IsTerminal reports whether a status ends the job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ScraperType selects a fetcher tier or the cascading policy.
type ScraperType string

const (
	ScraperHTTP     ScraperType = "http"
	ScraperReader   ScraperType = "reader"
	ScraperHeadless ScraperType = "headless"
	ScraperCheerio  ScraperType = "cheerio"
	ScraperSmart    ScraperType = "smart"
	ScraperAiAgent  ScraperType = "ai_agent"
	ScraperAuto     ScraperType = "auto"
)

// ScrapeOptions carries the per-job overrides accepted by create_job / scrape_and_answer.
type ScrapeOptions struct {
	ScraperType     ScraperType       `json:"scraper_type,omitempty"`
	UseProxy        bool              `json:"use_proxy,omitempty"`
	BlockResources  bool              `json:"block_resources,omitempty"`
	Screenshots     bool              `json:"screenshots,omitempty"`
	AuthCookies     map[string]string `json:"auth_cookies,omitempty"`
	EntityTypes     []EntityType      `json:"entity_types,omitempty"`
	Timeout         time.Duration     `json:"timeout,omitempty"`
	ForceRefresh    bool              `json:"force_refresh,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	MaxPages        int               `json:"max_pages,omitempty"`
	MaxDepth        int               `json:"max_depth,omitempty"`
}

// JobMetadata captures everything the execution algorithm learns about the fetch itself.
type JobMetadata struct {
	FinalURL     string    `json:"final_url,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	PageTitle    string    `json:"page_title,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	RequestCount int       `json:"request_count,omitempty"`
	Bytes        int       `json:"bytes,omitempty"`
	Retries      int       `json:"retries,omitempty"`
	ScraperUsed  string    `json:"scraper_used,omitempty"`
	FromCache    bool      `json:"from_cache,omitempty"`
}

// AIProcessing records the extraction call made against the job's content, if any.
type AIProcessing struct {
	Model    string `json:"model,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// ChatMessage is one turn of chat_with_job's running conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the unit of work the orchestrator creates, executes, and persists.
type Job struct {
	ID              string        `json:"id"`
	URL             string        `json:"url"`
	TaskDescription string        `json:"task_description,omitempty"`
	Status          JobStatus     `json:"status"`
	ScraperType     ScraperType   `json:"scraper_type"`
	UserID          string        `json:"user_id,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	Options         ScrapeOptions `json:"options"`

	HTML        string   `json:"html,omitempty"`
	Markdown    string   `json:"markdown,omitempty"`
	Text        string   `json:"text,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`

	ExtractedEntities []Entity    `json:"extracted_entities,omitempty"`
	Metadata          JobMetadata `json:"metadata"`
	AIProcessing      *AIProcessing `json:"ai_processing,omitempty"`
	ChatHistory       []ChatMessage `json:"chat_history,omitempty"`

	// ValidationResult is the content-quality verdict recorded after a
	// successful fetch and before extraction (spec.md §2 data flow / §4.5).
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	Created   time.Time  `json:"created"`
	Started   *time.Time `json:"started,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
}

// MarkStarted stamps Started and flips status to Running, unless already terminal.
func (j *Job) MarkStarted(now time.Time) {
	if j.Status.IsTerminal() {
		return
	}
	if j.Started == nil {
		t := now
		j.Started = &t
	}
	j.Status = JobStatusRunning
}

// MarkTerminal stamps Completed and sets the given terminal status, idempotently.
func (j *Job) MarkTerminal(status JobStatus, now time.Time) {
	if j.Status == status {
		return
	}
	if !status.IsTerminal() {
		return
	}
	j.Status = status
	if j.Completed == nil {
		t := now
		j.Completed = &t
	}
}
