package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aeodev/aiscrape/internal/cache"
	"github.com/aeodev/aiscrape/internal/circuitbreaker"
	"github.com/aeodev/aiscrape/internal/extraction"
	"github.com/aeodev/aiscrape/internal/fetcher"
	"github.com/aeodev/aiscrape/internal/retry"
	"github.com/aeodev/aiscrape/pkg/models"
)

// scrapeCacheTTL bounds how long a fetched page's content is reused without
// re-fetching; chosen to outlast a burst of near-duplicate jobs for the same
// URL without going stale for long-lived news/listing pages.
const scrapeCacheTTL = 15 * time.Minute

// minContentBytes below which a fetch is treated as an empty-content
// failure even though a tier reported success.
const minContentBytes = 100

// runJob drives one job from Queued through a terminal status. It is
// always invoked from the worker pool with a context tied to the job's
// own cancellation, and wraps the fetch attempt in a retry loop so a
// transient tier failure doesn't fail the job outright; validation and
// extraction then run once on the fetched result.
func (o *Orchestrator) runJob(ctx context.Context, jobID string) {
	defer o.clearCancel(jobID)

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		o.logger.WithError(err).WithField("job_id", jobID).Error("job vanished before execution")
		return
	}

	fetchStart := time.Now()
	job.MarkStarted(fetchStart)
	o.emitProgress(job, "fetching content")
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.WithError(err).Error("persist job start")
	}

	select {
	case <-time.After(startupJitter()):
	case <-ctx.Done():
	}

	var result *models.FetchResult
	var scraperUsed string
	var attempts int

	cacheKey := cache.ScrapeKey(job.URL, string(job.ScraperType))
	if cached, ok := o.cachedResult(ctx, cacheKey); ok {
		result, scraperUsed = cached, "cache"
	} else {
		runErr := retry.Do(ctx, o.cfg.RetryPolicy, isRetryableFetchErr, func(ctx context.Context, attempt int) error {
			attempts = attempt + 1
			r, used, err := o.fetch(ctx, job)
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("no tier produced sufficient content")
			}
			result, scraperUsed = r, used
			return nil
		})

		if ctx.Err() != nil {
			o.finish(ctx, job, models.JobStatusCancelled, "", attempts)
			return
		}

		if runErr != nil || result == nil {
			msg := "no scraper tier returned sufficient content"
			if runErr != nil {
				msg = runErr.Error()
			}
			o.finish(ctx, job, models.JobStatusFailed, msg, attempts)
			return
		}

		if o.cache != nil {
			o.cache.Set(ctx, cacheKey, result, scrapeCacheTTL)
		}
	}

	if len(result.Text) < minContentBytes && len(result.HTML) < minContentBytes {
		o.finish(ctx, job, models.JobStatusFailed, "fetched content was empty", attempts)
		return
	}

	fromCache := scraperUsed == "cache"
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}

	job.HTML = result.HTML
	job.Markdown = result.Markdown
	job.Text = result.Text
	job.Screenshots = result.Screenshots
	job.Metadata = models.JobMetadata{
		FinalURL:     result.FinalURL,
		StatusCode:   result.StatusCode,
		ContentType:  result.ContentType,
		PageTitle:    result.PageTitle,
		DurationMS:   time.Since(fetchStart).Milliseconds(),
		RequestCount: result.RequestCount,
		Bytes:        len(result.HTML) + len(result.Text),
		Retries:      retries,
		ScraperUsed:  scraperUsed,
		FromCache:    fromCache,
	}

	vres := o.ValidateContent(ctx, models.ValidationContext{
		HTML:            result.HTML,
		Text:            result.Text,
		Markdown:        result.Markdown,
		URL:             job.URL,
		TaskDescription: job.TaskDescription,
		PageTitle:       result.PageTitle,
		ContentType:     result.ContentType,
	})
	job.ValidationResult = &vres
	o.emitProgress(job, "validated content quality")

	if job.TaskDescription != "" && o.registry != nil {
		if !vres.Sufficient {
			job.AIProcessing = &models.AIProcessing{
				Prompt:  job.TaskDescription,
				Success: false,
				Error:   "skipped: content quality insufficient (" + vres.Reason + ")",
			}
		} else {
			o.emitProgress(job, "extracting entities")
			ectx := extraction.Context{
				HTML:            result.HTML,
				Markdown:        result.Markdown,
				Text:            result.Text,
				URL:             job.URL,
				TaskDescription: job.TaskDescription,
				EntityTypes:     job.Options.EntityTypes,
			}
			extractRes := o.registry.ExtractWithFallback(ctx, ectx, nil)
			job.ExtractedEntities = extractRes.Entities
			job.AIProcessing = &models.AIProcessing{
				Model:    metadataString(extractRes.Metadata, "model"),
				Prompt:   job.TaskDescription,
				Response: metadataString(extractRes.Metadata, "response"),
				Success:  extractRes.Success,
				Error:    extractRes.Error,
			}
		}
	}

	o.finish(ctx, job, models.JobStatusCompleted, "", attempts)
}

// metadataString extracts a string field from a Result's loosely-typed
// Metadata map, returning "" if absent or not a string (e.g. non-LLM
// strategies that never populate model/response).
func metadataString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// fetch resolves the job's scraper selection to either a direct tier
// dispatch or the Auto cascade, and runs it.
func (o *Orchestrator) fetch(ctx context.Context, job *models.Job) (*models.FetchResult, string, error) {
	opts := models.FetchOptions{
		JobID:           job.ID,
		UseProxy:        job.Options.UseProxy,
		BlockResources:  job.Options.BlockResources,
		Screenshots:     job.Options.Screenshots,
		AuthCookies:     job.Options.AuthCookies,
		Timeout:         job.Options.Timeout,
		TaskDescription: job.TaskDescription,
	}
	emit := o.emitterFor(job)

	var result *models.FetchResult
	var scraperUsed string
	run := func() error {
		var err error
		if job.ScraperType == models.ScraperAuto || job.ScraperType == "" {
			result, scraperUsed, err = fetcher.Cascade(ctx, o.cascade, job.URL, opts, emit, o.cfg.MinContentLength)
			return err
		}
		tier, ok := o.tiers[job.ScraperType]
		if !ok {
			return fmt.Errorf("unknown scraper type %q", job.ScraperType)
		}
		r, ferr := tier.Fetch(ctx, job.URL, opts, emit)
		if ferr != nil {
			return ferr
		}
		result, scraperUsed = r, tier.Name()
		return nil
	}

	if breaker := o.breakerFor(job.URL); breaker != nil {
		if err := breaker.Execute(run); err != nil {
			return nil, "", err
		}
		return result, scraperUsed, nil
	}
	if err := run(); err != nil {
		return nil, "", err
	}
	return result, scraperUsed, nil
}

// breakerFor returns the registry's breaker for the job URL's host, or nil
// if no breaker registry is configured.
func (o *Orchestrator) breakerFor(rawURL string) *circuitbreaker.Breaker {
	if o.breakers == nil {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return o.breakers.Get(host)
}

// cachedResult consults the cache manager (if configured) for a prior fetch
// of the same key, JSON round-tripping the stored value back into a
// FetchResult since a Redis-backed hit decodes as a generic map.
func (o *Orchestrator) cachedResult(ctx context.Context, key string) (*models.FetchResult, bool) {
	if o.cache == nil {
		return nil, false
	}
	got := o.cache.Get(ctx, key)
	if !got.FromCache || got.Data == nil {
		return nil, false
	}
	raw, err := json.Marshal(got.Data)
	if err != nil {
		return nil, false
	}
	var result models.FetchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (o *Orchestrator) finish(ctx context.Context, job *models.Job, status models.JobStatus, errMsg string, attempts int) {
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	job.MarkTerminal(status, time.Now())
	o.emitProgress(job, string(status))
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.WithError(err).WithField("job_id", job.ID).Error("persist job completion")
	}
}

func (o *Orchestrator) emitProgress(job *models.Job, message string) {
	evt := models.ProgressEvent{JobID: job.ID, Status: job.Status, Message: message}
	o.logger.WithFields(logFieldsFor(evt)).Debug(message)
}

func (o *Orchestrator) emitterFor(job *models.Job) models.Emit {
	return func(evt models.ActionEvent) {
		evt.JobID = job.ID
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now()
		}
		o.logger.WithFields(map[string]interface{}{
			"job_id": evt.JobID,
			"type":   evt.Type,
		}).Debug(evt.Message)
	}
}

func logFieldsFor(evt models.ProgressEvent) map[string]interface{} {
	return map[string]interface{}{
		"job_id": evt.JobID,
		"status": evt.Status,
	}
}

// isRetryableFetchErr treats every non-context error as retryable; the
// tiers themselves already distinguish "insufficient, try next tier"
// (nil, nil) from hard infrastructure failures, so anything reaching this
// point is a genuine transport/timeout error worth a backoff retry.
func isRetryableFetchErr(err error) bool {
	return err != context.Canceled && err != context.DeadlineExceeded
}
