package crawler

import (
	"sync"

	"github.com/aeodev/aiscrape/pkg/models"
)

// PriorityQueue is FIFO by default but honors a page's Priority field
// (higher first); equal priorities are served in insertion order.
type PriorityQueue struct {
	mu      sync.Mutex
	items   []*models.CrawlPage
	seq     int
	present map[string]bool
}

// NewPriorityQueue constructs an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{present: make(map[string]bool)}
}

// Enqueue inserts page, stamping its insertion sequence for tie-breaking.
func (q *PriorityQueue) Enqueue(page *models.CrawlPage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	page.SetSeq(q.seq)
	q.items = append(q.items, page)
	q.present[page.URL] = true
}

// Dequeue removes and returns the highest-priority page (earliest insertion
// order breaks ties), or nil if the queue is empty.
func (q *PriorityQueue) Dequeue() *models.CrawlPage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}

	bestIdx := 0
	for i := 1; i < len(q.items); i++ {
		if q.items[i].Priority > q.items[bestIdx].Priority {
			bestIdx = i
			continue
		}
		if q.items[i].Priority == q.items[bestIdx].Priority && q.items[i].Seq() < q.items[bestIdx].Seq() {
			bestIdx = i
		}
	}

	page := q.items[bestIdx]
	q.items = append(q.items[:bestIdx], q.items[bestIdx+1:]...)
	delete(q.present, page.URL)
	return page
}

// HasURL reports whether url is currently queued.
func (q *PriorityQueue) HasURL(url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.present[url]
}

// IsEmpty reports whether the queue currently holds no pages.
func (q *PriorityQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of pages currently queued.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
