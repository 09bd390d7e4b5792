package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/internal/fetcher"
	"github.com/aeodev/aiscrape/pkg/models"
)

type stubFetcher struct {
	name   string
	result *models.FetchResult
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(ctx context.Context, url string, opts models.FetchOptions, emit models.Emit) (*models.FetchResult, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func waitForTerminal(t *testing.T, o *Orchestrator, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

func newTestOrchestrator(cascade []fetcher.Fetcher, tiers map[models.ScraperType]fetcher.Fetcher) *Orchestrator {
	cfg := Config{MaxConcurrent: 4, QueueSize: 10}
	o := New(NewInMemoryJobStore(), cascade, tiers, nil, nil, nil, cfg, testLogger(), nil, nil)
	o.Start(context.Background())
	return o
}

func TestCreateJobCompletesOnSufficientContent(t *testing.T) {
	stub := &stubFetcher{name: "http", result: &models.FetchResult{
		HTML: "<html>content</html>", Text: "enough content to pass the minimum byte floor check here: at least one hundred characters of fetched text",
	}}
	o := newTestOrchestrator([]fetcher.Fetcher{stub}, nil)
	defer o.Stop(context.Background())

	job, err := o.CreateJob(context.Background(), "https://example.com", "", models.ScrapeOptions{ScraperType: models.ScraperAuto})
	require.NoError(t, err)

	final := waitForTerminal(t, o, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, "http", final.Metadata.ScraperUsed)
	assert.NotNil(t, final.Started)
	assert.NotNil(t, final.Completed)
}

func TestCreateJobFailsWhenNoTierSufficient(t *testing.T) {
	stub := &stubFetcher{name: "http", result: nil, err: nil}
	cfg := Config{MaxConcurrent: 4, QueueSize: 10}
	o := New(NewInMemoryJobStore(), []fetcher.Fetcher{stub}, nil, nil, nil, nil, cfg, testLogger(), nil, nil)
	o.Start(context.Background())
	defer o.Stop(context.Background())

	job, err := o.CreateJob(context.Background(), "https://example.com", "", models.ScrapeOptions{})
	require.NoError(t, err)

	final := waitForTerminal(t, o, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestCancelJobBeforeCompletionMarksCancelled(t *testing.T) {
	stub := &stubFetcher{name: "http", delay: time.Second, result: &models.FetchResult{Text: "irrelevant, the fetch never returns before cancellation"}}
	o := newTestOrchestrator([]fetcher.Fetcher{stub}, nil)
	defer o.Stop(context.Background())

	job, err := o.CreateJob(context.Background(), "https://example.com", "", models.ScrapeOptions{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.CancelJob(context.Background(), job.ID))

	final := waitForTerminal(t, o, job.ID)
	assert.Equal(t, models.JobStatusCancelled, final.Status)
}

func TestDirectTierDispatchBypassesCascade(t *testing.T) {
	httpStub := &stubFetcher{name: "http", result: &models.FetchResult{Text: "should not be used for this direct-dispatch job"}}
	headlessStub := &stubFetcher{name: "headless", result: &models.FetchResult{
		Text: "headless tier content long enough to clear the minimum byte floor of one hundred characters in the orchestrator's job runner",
	}}
	tiers := map[models.ScraperType]fetcher.Fetcher{models.ScraperHeadless: headlessStub}
	o := newTestOrchestrator([]fetcher.Fetcher{httpStub}, tiers)
	defer o.Stop(context.Background())

	job, err := o.CreateJob(context.Background(), "https://example.com", "", models.ScrapeOptions{ScraperType: models.ScraperHeadless})
	require.NoError(t, err)

	final := waitForTerminal(t, o, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 0, httpStub.calls)
	assert.Equal(t, 1, headlessStub.calls)
}

func TestScrapeAndAnswerParsesEmbeddedURL(t *testing.T) {
	stub := &stubFetcher{name: "http", result: &models.FetchResult{
		Text: "enough content to clear the minimum byte floor check for this job of one hundred characters in the orchestrator's job runner",
	}}
	o := newTestOrchestrator([]fetcher.Fetcher{stub}, nil)
	defer o.Stop(context.Background())

	job, answer, err := o.ScrapeAndAnswer(context.Background(), "what roles are open at https://example.com/careers ?", models.ScrapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/careers", job.URL)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Empty(t, answer) // no LLM wired in this test
}

func TestScrapeAndAnswerRejectsInputWithoutURL(t *testing.T) {
	o := newTestOrchestrator(nil, nil)
	defer o.Stop(context.Background())

	_, _, err := o.ScrapeAndAnswer(context.Background(), "no url in here", models.ScrapeOptions{})
	assert.Error(t, err)
}

func TestChatWithJobFailsWithoutContent(t *testing.T) {
	store := NewInMemoryJobStore()
	require.NoError(t, store.Create(context.Background(), &models.Job{ID: "j1", Status: models.JobStatusCompleted}))
	o := New(store, nil, nil, nil, nil, nil, Config{MaxConcurrent: 1, QueueSize: 1}, testLogger(), nil, nil)

	_, err := o.ChatWithJob(context.Background(), "j1", "hello")
	assert.Error(t, err)
}

func TestCancelJobAlreadyCompletedIsNoop(t *testing.T) {
	stub := &stubFetcher{name: "http", result: &models.FetchResult{Text: "content long enough to clear the minimum byte floor check of one hundred characters in the orchestrator's job runner"}}
	o := newTestOrchestrator([]fetcher.Fetcher{stub}, nil)
	defer o.Stop(context.Background())

	job, err := o.CreateJob(context.Background(), "https://example.com", "", models.ScrapeOptions{})
	require.NoError(t, err)
	waitForTerminal(t, o, job.ID)

	require.NoError(t, o.CancelJob(context.Background(), job.ID))
	final, err := o.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}
