package models

// CreateJobRequest is the body for POST /api/v1/jobs.
type CreateJobRequest struct {
	URL             string         `json:"url" validate:"required,url"`
	TaskDescription string         `json:"task_description,omitempty"`
	Options         *ScrapeOptions `json:"options,omitempty"`
}

// ScrapeAndAnswerRequest is the body for POST /api/v1/scrape-and-answer.
type ScrapeAndAnswerRequest struct {
	Input        string         `json:"input" validate:"required"`
	Options      *ScrapeOptions `json:"options,omitempty"`
	ForceRefresh bool           `json:"force_refresh,omitempty"`
}

// ChatWithJobRequest is the body for POST /api/v1/jobs/:id/chat.
type ChatWithJobRequest struct {
	Message string `json:"message" validate:"required"`
}
