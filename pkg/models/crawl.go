package models

import "time"

// CrawlPageStatus tracks a discovered URL through the crawl queue.
type CrawlPageStatus string

const (
	CrawlPagePending CrawlPageStatus = "pending"
	CrawlPageVisited CrawlPageStatus = "visited"
	CrawlPageFailed  CrawlPageStatus = "failed"
)

// CrawlPage is one node in the AI-agent crawler's queue.
type CrawlPage struct {
	URL          string          `json:"url"`
	Depth        int             `json:"depth"`
	Priority     int             `json:"priority"`
	ParentURL    string          `json:"parent_url,omitempty"`
	DiscoveredAt time.Time       `json:"discovered_at"`
	Status       CrawlPageStatus `json:"status"`
	VisitedAt    *time.Time      `json:"visited_at,omitempty"`
	Error        string          `json:"error,omitempty"`

	seq int // insertion order, used by the priority queue to break ties
}

// SetSeq stamps the page's insertion sequence number.
func (p *CrawlPage) SetSeq(seq int) { p.seq = seq }

// Seq returns the page's insertion sequence number.
func (p *CrawlPage) Seq() int { return p.seq }

// CrawlConfig bounds a single AI-agent crawl.
type CrawlConfig struct {
	MaxPages              int           `yaml:"max_pages" default:"20"`
	MaxDepth              int           `yaml:"max_depth" default:"3"`
	MaxAjaxEndpoints      int           `yaml:"max_ajax_endpoints" default:"10"`
	FollowExternalLinks   bool          `yaml:"follow_external_links" default:"false"`
	AllowedDomains        []string      `yaml:"allowed_domains"`
	BlockedPatterns       []string      `yaml:"blocked_patterns"`
	DelayBetweenRequests  time.Duration `yaml:"delay_between_requests" default:"0s"`
	Timeout               time.Duration `yaml:"timeout" default:"5s"`
}

// CrawlStats is the tracker's running and final tally for one crawl.
type CrawlStats struct {
	PagesVisited     int             `json:"pages_visited"`
	PagesByDepth     map[int]int     `json:"pages_by_depth"`
	Failed           int             `json:"failed"`
	Skipped          int             `json:"skipped"`
	Duplicates       int             `json:"duplicates"`
	LinksDiscovered  int             `json:"links_discovered"`
	AjaxFetched      int             `json:"ajax_fetched"`
	PageTimes        []time.Duration `json:"-"`
	DepthReached     int             `json:"depth_reached"`
	TotalTime        time.Duration   `json:"total_time"`
}

// SuccessRate returns the fraction of visited (non-failed) pages over all attempts.
func (s *CrawlStats) SuccessRate() float64 {
	total := s.PagesVisited + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.PagesVisited) / float64(total)
}

// AveragePageTime returns the mean per-page fetch duration.
func (s *CrawlStats) AveragePageTime() time.Duration {
	if len(s.PageTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s.PageTimes {
		sum += d
	}
	return sum / time.Duration(len(s.PageTimes))
}
