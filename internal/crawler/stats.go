package crawler

import (
	"sync"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// StatsTracker accumulates per-crawl counters and derives summary metrics.
type StatsTracker struct {
	mu      sync.Mutex
	started time.Time
	stats   models.CrawlStats
}

// NewStatsTracker starts a tracker with its clock running from now.
func NewStatsTracker(now time.Time) *StatsTracker {
	return &StatsTracker{started: now, stats: models.CrawlStats{PagesByDepth: make(map[int]int)}}
}

// RecordVisit logs a successfully fetched page at depth, with its fetch time.
func (t *StatsTracker) RecordVisit(depth int, pageTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PagesVisited++
	t.stats.PagesByDepth[depth]++
	t.stats.PageTimes = append(t.stats.PageTimes, pageTime)
	if depth > t.stats.DepthReached {
		t.stats.DepthReached = depth
	}
}

// RecordFailed logs a page whose fetch failed.
func (t *StatsTracker) RecordFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Failed++
}

// RecordSkipped logs a page skipped without being fetched (e.g. depth exceeded).
func (t *StatsTracker) RecordSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Skipped++
}

// RecordDuplicate logs a URL that the duplicate detector rejected.
func (t *StatsTracker) RecordDuplicate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Duplicates++
}

// RecordLinksDiscovered adds n to the running link-discovery count.
func (t *StatsTracker) RecordLinksDiscovered(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.LinksDiscovered += n
}

// RecordAjaxFetched logs one successfully fetched AJAX endpoint.
func (t *StatsTracker) RecordAjaxFetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.AjaxFetched++
}

// Snapshot returns a read-only copy of the tracker's current stats, with
// TotalTime derived from the tracker's start time.
func (t *StatsTracker) Snapshot(now time.Time) models.CrawlStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.stats
	out.TotalTime = now.Sub(t.started)

	byDepth := make(map[int]int, len(t.stats.PagesByDepth))
	for k, v := range t.stats.PagesByDepth {
		byDepth[k] = v
	}
	out.PagesByDepth = byDepth

	times := make([]time.Duration, len(t.stats.PageTimes))
	copy(times, t.stats.PageTimes)
	out.PageTimes = times

	return out
}
