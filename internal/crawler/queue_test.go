package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestQueueIsFIFOWhenPrioritiesEqual(t *testing.T) {
	q := NewPriorityQueue()
	q.Enqueue(&models.CrawlPage{URL: "a"})
	q.Enqueue(&models.CrawlPage{URL: "b"})
	q.Enqueue(&models.CrawlPage{URL: "c"})

	require.Equal(t, "a", q.Dequeue().URL)
	require.Equal(t, "b", q.Dequeue().URL)
	require.Equal(t, "c", q.Dequeue().URL)
	assert.True(t, q.IsEmpty())
}

func TestQueueHigherPriorityDequeuesFirst(t *testing.T) {
	q := NewPriorityQueue()
	q.Enqueue(&models.CrawlPage{URL: "low", Priority: 1})
	q.Enqueue(&models.CrawlPage{URL: "high", Priority: 10})
	q.Enqueue(&models.CrawlPage{URL: "mid", Priority: 5})

	assert.Equal(t, "high", q.Dequeue().URL)
	assert.Equal(t, "mid", q.Dequeue().URL)
	assert.Equal(t, "low", q.Dequeue().URL)
}

func TestQueueHasURLAndDequeueEmpty(t *testing.T) {
	q := NewPriorityQueue()
	q.Enqueue(&models.CrawlPage{URL: "x"})
	assert.True(t, q.HasURL("x"))
	q.Dequeue()
	assert.False(t, q.HasURL("x"))
	assert.Nil(t, q.Dequeue())
}
