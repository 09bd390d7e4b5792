// Package proxy implements the proxy pool and rotation strategies of
// spec.md §4.7. No teacher or pack example offers a proxy-rotation
// analog (the one "proxy" hit in the retrieval pack was an unrelated
// LLM-call audit reverse-proxy), so this is built fresh, reusing the
// teacher's per-resource mutex-guarded map + background ticker idiom from
// internal/scraper/workers/limiter.go.
package proxy

import (
	"hash/fnv"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Pool is the process-wide proxy pool singleton.
type Pool struct {
	mu          sync.RWMutex
	proxies     map[string]*models.Proxy
	order       []string // stable insertion order, for RoundRobin
	rrIndex     int
	maxFailures int
}

// New constructs an empty Pool. maxConsecutiveFailures gates the
// Active->Unhealthy transition (spec.md §3 Proxy invariant).
func New(maxConsecutiveFailures int) *Pool {
	if maxConsecutiveFailures <= 0 {
		maxConsecutiveFailures = 3
	}
	return &Pool{proxies: make(map[string]*models.Proxy), maxFailures: maxConsecutiveFailures}
}

// Add inserts or replaces a proxy by ID.
func (p *Pool) Add(proxy *models.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.proxies[proxy.ID]; !exists {
		p.order = append(p.order, proxy.ID)
	}
	p.proxies[proxy.ID] = proxy
}

// Remove deletes a proxy from the pool.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.proxies, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// GetByID returns a proxy by ID, or nil.
func (p *Pool) GetByID(id string) *models.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.proxies[id]
}

// GetAll returns every proxy in stable insertion order.
func (p *Pool) GetAll() []*models.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Proxy, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.proxies[id])
	}
	return out
}

// GetByStatus filters GetAll by status.
func (p *Pool) GetByStatus(status models.ProxyStatus) []*models.Proxy {
	all := p.GetAll()
	out := make([]*models.Proxy, 0, len(all))
	for _, pr := range all {
		if pr.Status == status {
			out = append(out, pr)
		}
	}
	return out
}

// GetActive returns proxies with status Active.
func (p *Pool) GetActive() []*models.Proxy {
	return p.GetByStatus(models.ProxyActive)
}

// Update replaces the stored proxy record in place.
func (p *Pool) Update(proxy *models.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.proxies[proxy.ID]; !exists {
		p.order = append(p.order, proxy.ID)
	}
	p.proxies[proxy.ID] = proxy
}

// Clear empties the pool.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = make(map[string]*models.Proxy)
	p.order = nil
	p.rrIndex = 0
}

// GetNext picks the next proxy to use per the given rotation strategy among
// currently active proxies. Returns nil if no proxy is active.
func (p *Pool) GetNext(strategy models.RotationStrategy) *models.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := make([]*models.Proxy, 0)
	for _, id := range p.order {
		if pr := p.proxies[id]; pr != nil && pr.Status == models.ProxyActive {
			active = append(active, pr)
		}
	}
	if len(active) == 0 {
		return nil
	}

	switch strategy {
	case models.RotationRandom:
		return active[pseudoRandomIndex(len(active))]
	case models.RotationWeighted:
		return weightedPick(active)
	case models.RotationLeastUsed:
		return leastUsedPick(active)
	default: // RoundRobin
		idx := p.rrIndex % len(active)
		p.rrIndex++
		return active[idx]
	}
}

// MarkUsed stamps last-used time.
func (p *Pool) MarkUsed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.proxies[id]; ok {
		now := time.Now()
		pr.LastUsed = &now
	}
}

// MarkSuccess resets consecutive failures, flips the proxy back to Active,
// and folds the observed response time into its moving average.
func (p *Pool) MarkSuccess(id string, responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.proxies[id]
	if !ok {
		return
	}
	pr.SuccessCount++
	pr.ConsecutiveFailures = 0
	pr.ResponseTime = responseTime
	if pr.AvgResponseTime == 0 {
		pr.AvgResponseTime = responseTime
	} else {
		pr.AvgResponseTime = (pr.AvgResponseTime + responseTime) / 2
	}
	if pr.Status == models.ProxyUnhealthy {
		pr.Status = models.ProxyActive
	}
}

// MarkFailure increments the failure counters and flips the proxy to
// Unhealthy once consecutive failures reach the configured threshold.
func (p *Pool) MarkFailure(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.proxies[id]
	if !ok {
		return
	}
	pr.FailureCount++
	pr.ConsecutiveFailures++
	if pr.ConsecutiveFailures >= p.maxFailures {
		pr.Status = models.ProxyUnhealthy
	}
}

func pseudoRandomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return int(time.Now().UnixNano() % int64(n))
}

func weightedPick(proxies []*models.Proxy) *models.Proxy {
	weights := make([]float64, len(proxies))
	var total float64
	for i, pr := range proxies {
		w := 1.0
		if pr.TotalRequests() > 0 {
			w = pr.SuccessRate()
			if w <= 0 {
				w = 0.01 // never fully zero out a proxy, even one with no successes
			}
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return proxies[0]
	}
	target := pseudoRandomFloat() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if target <= cumulative {
			return proxies[i]
		}
	}
	return proxies[len(proxies)-1]
}

func pseudoRandomFloat() float64 {
	return float64(time.Now().UnixNano()%1_000_000) / 1_000_000
}

func leastUsedPick(proxies []*models.Proxy) *models.Proxy {
	sorted := make([]*models.Proxy, len(proxies))
	copy(sorted, proxies)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := sorted[i].TotalRequests(), sorted[j].TotalRequests()
		if ti != tj {
			return ti < tj
		}
		return sorted[i].SuccessRate() > sorted[j].SuccessRate()
	})
	return sorted[0]
}

// ParseProxyURL derives {protocol, host, port, username?, password?} from a
// proxy URL string; an unrecognized scheme defaults to http. The ID is a
// stable 32-bit hash of the URL string.
func ParseProxyURL(raw string) (*models.Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	protocol := models.ProxyHTTP
	switch u.Scheme {
	case "https":
		protocol = models.ProxyHTTPS
	case "socks4":
		protocol = models.ProxySocks4
	case "socks5":
		protocol = models.ProxySocks5
	}

	host := u.Hostname()
	port := 0
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	} else if protocol == models.ProxyHTTPS {
		port = 443
	} else {
		port = 80
	}

	var username, password string
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	return &models.Proxy{
		ID:       HashProxyURL(raw),
		URL:      raw,
		Protocol: protocol,
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Status:   models.ProxyActive,
	}, nil
}

// HashProxyURL returns a stable 32-bit FNV hash of a proxy URL, used as its pool ID.
func HashProxyURL(raw string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(raw))
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}
