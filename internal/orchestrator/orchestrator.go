package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aeodev/aiscrape/internal/cache"
	"github.com/aeodev/aiscrape/internal/circuitbreaker"
	"github.com/aeodev/aiscrape/internal/extraction"
	"github.com/aeodev/aiscrape/internal/fetcher"
	"github.com/aeodev/aiscrape/internal/llmclient"
	"github.com/aeodev/aiscrape/internal/retry"
	"github.com/aeodev/aiscrape/internal/validator"
	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

// embeddedURLPattern pulls the first http(s) URL out of a free-form
// scrape_and_answer input string; everything else is treated as the question.
var embeddedURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// recentJobWindow bounds how old a matching completed job can be before
// scrape_and_answer re-fetches instead of reusing it.
const recentJobWindow = 5 * time.Minute

// Config configures the orchestrator's worker pool and retry policy.
type Config struct {
	MaxConcurrent int
	QueueSize     int
	RetryPolicy   retry.Policy
	// MinContentLength is the cascade's configurable is_valid_content
	// threshold (spec.md §4.1 step 2 / glossary "sufficient content"),
	// distinct from each tier's own internal MinTextLength floor.
	MinContentLength int
}

// DefaultConfig matches the scraper's stated concurrency default.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    10,
		QueueSize:        100,
		MinContentLength: fetcher.MinTextLength,
		RetryPolicy:      retry.Policy{BaseDelay: time.Second, MaxRetries: 2, MaxDelay: 30 * time.Second},
	}
}

// Orchestrator owns the job lifecycle: creation, the cascading fetch/
// extract execution, cancellation, and the chat/scrape_and_answer
// conveniences built on top of a completed job's content.
//
// Grounded on internal/background/manager.go's TaskManagerImpl: a bounded
// worker pool draining a buffered channel of executions, generalized from
// opaque TaskResult blobs to status-machine-enforced Job records.
type Orchestrator struct {
	store     JobStore
	cascade   []fetcher.Fetcher // Auto policy order: HTTP, Reader, Headless
	tiers     map[models.ScraperType]fetcher.Fetcher
	registry  *extraction.Registry
	validator *validator.Validator
	llm       *llmclient.Client
	cfg       Config
	logger    *logrus.Logger

	// cache and breakers are both optional: a nil value degrades the
	// orchestrator to "always fetch, never trip" rather than erroring.
	cache    *cache.Manager
	breakers *circuitbreaker.Registry

	taskChan chan func(context.Context)
	sem      chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New wires an Orchestrator around already-constructed collaborators. tiers
// maps every selectable ScraperType (including ScraperAuto's constituent
// tiers) to its Fetcher; cascade is the subset/order Auto tries. cache and
// breakers may both be nil.
func New(store JobStore, cascade []fetcher.Fetcher, tiers map[models.ScraperType]fetcher.Fetcher,
	registry *extraction.Registry, v *validator.Validator, llm *llmclient.Client, cfg Config, logger *logrus.Logger,
	cacheMgr *cache.Manager, breakers *circuitbreaker.Registry) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		def := DefaultConfig()
		minContentLength := cfg.MinContentLength
		cfg = def
		if minContentLength > 0 {
			cfg.MinContentLength = minContentLength
		}
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = fetcher.MinTextLength
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	o := &Orchestrator{
		store:     store,
		cascade:   cascade,
		tiers:     tiers,
		registry:  registry,
		validator: v,
		llm:       llm,
		cfg:       cfg,
		logger:    logger,
		cache:     cacheMgr,
		breakers:  breakers,
		taskChan:  make(chan func(context.Context), cfg.QueueSize),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		cancels:   make(map[string]context.CancelFunc),
	}
	return o
}

// Start launches the worker pool; it returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.dispatch(ctx)
}

// Stop signals the worker pool to drain and waits for in-flight jobs.
func (o *Orchestrator) Stop(ctx context.Context) error {
	close(o.taskChan)
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) dispatch(ctx context.Context) {
	defer o.wg.Done()
	for task := range o.taskChan {
		o.sem <- struct{}{}
		o.wg.Add(1)
		go func(t func(context.Context)) {
			defer o.wg.Done()
			defer func() { <-o.sem }()
			t(ctx)
		}(task)
	}
}

// CreateJob stores a Queued job and submits it for background execution,
// returning immediately with the job's initial state.
func (o *Orchestrator) CreateJob(ctx context.Context, rawURL, taskDescription string, opts models.ScrapeOptions) (*models.Job, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, utils.NewInvalidURLError(rawURL)
	}

	job := &models.Job{
		ID:              uuid.NewString(),
		URL:             rawURL,
		TaskDescription: taskDescription,
		Status:          models.JobStatusQueued,
		ScraperType:     opts.ScraperType,
		UserID:          opts.UserID,
		SessionID:       opts.SessionID,
		Options:         opts,
		Created:         time.Now(),
	}
	if job.ScraperType == "" {
		job.ScraperType = models.ScraperAuto
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	select {
	case o.taskChan <- func(context.Context) { o.runJob(jobCtx, job.ID) }:
	default:
		cancel()
		o.mu.Lock()
		delete(o.cancels, job.ID)
		o.mu.Unlock()
		return nil, utils.NewInternalServerError("job queue is full")
	}

	return job, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return o.store.Get(ctx, id)
}

// ListJobs returns every known job.
func (o *Orchestrator) ListJobs(ctx context.Context) ([]*models.Job, error) {
	return o.store.List(ctx)
}

// DeleteJob removes a job's record. It does not cancel an in-flight run.
func (o *Orchestrator) DeleteJob(ctx context.Context, id string) error {
	return o.store.Delete(ctx, id)
}

// CancelJob cooperatively cancels a running or queued job: in-flight work
// observes ctx.Err() at its next checkpoint and the job is stamped
// Cancelled immediately if it hasn't already reached a terminal status.
func (o *Orchestrator) CancelJob(ctx context.Context, id string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}

	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.MarkTerminal(models.JobStatusCancelled, time.Now())
	return o.store.Update(ctx, job)
}

// ScrapeAndAnswer parses input for an embedded URL and a trailing question,
// reuses a recent (< 5 min) completed job for the same URL+session unless
// ForceRefresh is set, otherwise submits a job through the worker queue and
// polls until it reaches a terminal status and, if an LLM is available,
// answers the question against the fetched content.
func (o *Orchestrator) ScrapeAndAnswer(ctx context.Context, input string, opts models.ScrapeOptions) (*models.Job, string, error) {
	targetURL, question := splitURLAndQuestion(input)
	if targetURL == "" {
		return nil, "", utils.NewInvalidURLError(input)
	}

	if !opts.ForceRefresh {
		if job := o.findRecentCompletedJob(ctx, targetURL, opts.SessionID); job != nil {
			answer, err := o.answerIfPossible(ctx, job, question)
			return job, answer, err
		}
	}

	job, err := o.CreateJob(ctx, targetURL, question, opts)
	if err != nil {
		return nil, "", err
	}

	for {
		current, err := o.store.Get(ctx, job.ID)
		if err != nil {
			return nil, "", err
		}
		if current.Status.IsTerminal() {
			job = current
			break
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	answer, err := o.answerIfPossible(ctx, job, question)
	return job, answer, err
}

func (o *Orchestrator) answerIfPossible(ctx context.Context, job *models.Job, question string) (string, error) {
	if job.Status != models.JobStatusCompleted || o.llm == nil || !o.llm.IsAvailable() || question == "" {
		return "", nil
	}
	return o.llm.Chat(ctx, job.Text, nil, question)
}

// findRecentCompletedJob returns the most recent Completed job for the same
// URL+session that finished within recentJobWindow, or nil if none qualifies.
func (o *Orchestrator) findRecentCompletedJob(ctx context.Context, targetURL, sessionID string) *models.Job {
	jobs, err := o.store.List(ctx)
	if err != nil {
		return nil
	}
	var best *models.Job
	for _, j := range jobs {
		if j.URL != targetURL || j.SessionID != sessionID || j.Status != models.JobStatusCompleted || j.Completed == nil {
			continue
		}
		if time.Since(*j.Completed) > recentJobWindow {
			continue
		}
		if best == nil || j.Completed.After(*best.Completed) {
			best = j
		}
	}
	return best
}

// splitURLAndQuestion pulls the first embedded URL out of input; everything
// else (leading/trailing whitespace trimmed) is the question.
func splitURLAndQuestion(input string) (targetURL, question string) {
	loc := embeddedURLPattern.FindStringIndex(input)
	if loc == nil {
		return "", strings.TrimSpace(input)
	}
	targetURL = input[loc[0]:loc[1]]
	question = strings.TrimSpace(input[:loc[0]] + input[loc[1]:])
	return targetURL, question
}

// ChatWithJob answers message using job's fetched content as context,
// appending both turns to the job's running chat history.
func (o *Orchestrator) ChatWithJob(ctx context.Context, jobID, message string) (string, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Text == "" && job.Markdown == "" {
		return "", utils.NewNoContentError(jobID)
	}
	if o.llm == nil || !o.llm.IsAvailable() {
		return "", utils.NewDownstreamUnavailableError("LLM is not available")
	}

	history := make([]llmclient.ChatMessage, 0, len(job.ChatHistory))
	for _, m := range job.ChatHistory {
		history = append(history, llmclient.ChatMessage{Role: m.Role, Content: m.Content})
	}

	answer, err := o.llm.Chat(ctx, job.Text, history, message)
	if err != nil {
		return "", err
	}

	now := time.Now()
	job.ChatHistory = append(job.ChatHistory,
		models.ChatMessage{Role: "user", Content: message, Timestamp: now},
		models.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err := o.store.Update(ctx, job); err != nil {
		return "", err
	}
	return answer, nil
}

// ValidateContent runs the configured content-quality strategy directly
// against html/text, independent of any job. Exposed for callers that want
// a sufficiency verdict without running a full fetch (e.g. re-checking a
// previously stored job's content against a different task description).
func (o *Orchestrator) ValidateContent(ctx context.Context, vctx models.ValidationContext) models.ValidationResult {
	if o.validator == nil {
		return models.ValidationResult{Sufficient: true, Reason: "no validator configured"}
	}
	return o.validator.Validate(ctx, vctx)
}

func (o *Orchestrator) clearCancel(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.mu.Unlock()
}

// startupJitter spreads concurrent job starts so a burst of CreateJob
// calls doesn't hammer the target host in lockstep.
func startupJitter() time.Duration {
	return time.Duration(rand.Intn(300)) * time.Millisecond
}
