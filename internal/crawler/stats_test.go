package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsTrackerAccumulatesAndDerives(t *testing.T) {
	start := time.Now()
	tr := NewStatsTracker(start)

	tr.RecordVisit(0, 100*time.Millisecond)
	tr.RecordVisit(1, 200*time.Millisecond)
	tr.RecordFailed()
	tr.RecordSkipped()
	tr.RecordDuplicate()
	tr.RecordLinksDiscovered(5)
	tr.RecordAjaxFetched()

	snap := tr.Snapshot(start.Add(time.Second))
	assert.Equal(t, 2, snap.PagesVisited)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.Duplicates)
	assert.Equal(t, 5, snap.LinksDiscovered)
	assert.Equal(t, 1, snap.AjaxFetched)
	assert.Equal(t, 1, snap.DepthReached)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate(), 0.001)
	assert.Equal(t, 150*time.Millisecond, snap.AveragePageTime())
	assert.Equal(t, time.Second, snap.TotalTime)
}
