package proxy

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HealthCheckConfig controls the background health checker.
type HealthCheckConfig struct {
	Interval        time.Duration
	Timeout         time.Duration
	Concurrency     int
	ProbesPerSecond float64 // steady-state probe dispatch rate, separate from the Concurrency cap
	ProbeURL        string
}

// DefaultHealthCheckConfig mirrors spec.md §4.7's stated defaults.
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Interval:        5 * time.Minute,
		Timeout:         10 * time.Second,
		Concurrency:     5,
		ProbesPerSecond: 5,
		ProbeURL:        "https://httpbin.org/ip",
	}
}

// HealthChecker periodically probes every pooled proxy through a real HTTP
// request and feeds the result back into the pool's success/failure
// accounting, mirroring the ticker-driven background sweep the teacher runs
// in internal/scraper/workers/limiter.go for its per-domain rate buckets.
//
// Dispatch is double-bounded: a semaphore caps in-flight probes at
// Concurrency, and a token-bucket limiter paces how fast new probes start --
// the steady background sweep this batch runs is exactly the kind of
// problem golang.org/x/time/rate is for, unlike the per-caller request gate
// in internal/ratelimit, which needs genuine sliding-window semantics
// instead (see DESIGN.md).
type HealthChecker struct {
	pool    *Pool
	cfg     HealthCheckConfig
	logger  *logrus.Logger
	limiter *rate.Limiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHealthChecker builds a checker bound to pool.
func NewHealthChecker(pool *Pool, cfg HealthCheckConfig, logger *logrus.Logger) *HealthChecker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ProbesPerSecond <= 0 {
		cfg.ProbesPerSecond = float64(cfg.Concurrency)
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.ProbesPerSecond), cfg.Concurrency)
	return &HealthChecker{pool: pool, cfg: cfg, logger: logger, limiter: limiter, stopCh: make(chan struct{})}
}

// Start launches the periodic background sweep; it returns immediately.
func (h *HealthChecker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.CheckAll(ctx)
			}
		}
	}()
}

// Stop halts the background sweep; safe to call multiple times.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// CheckAll probes every pooled proxy, bounded by cfg.Concurrency concurrent
// probes, and folds each result into the pool via MarkSuccess/MarkFailure.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	proxies := h.pool.GetAll()
	sem := make(chan struct{}, h.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, p := range proxies {
		p := p
		if err := h.limiter.Wait(ctx); err != nil {
			break // context cancelled/deadline exceeded; stop dispatching new probes
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			h.checkOne(ctx, p.ID)
		}()
	}
	wg.Wait()
}

func (h *HealthChecker) checkOne(ctx context.Context, id string) {
	p := h.pool.GetByID(id)
	if p == nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.cfg.ProbeURL, nil)
	if err != nil {
		h.pool.MarkFailure(id)
		return
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(mustParseProxyURL(p.URL))},
		Timeout:   h.cfg.Timeout,
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	now := time.Now()
	p.LastChecked = &now

	if err != nil || resp.StatusCode >= 500 {
		if h.logger != nil {
			h.logger.WithField("proxy", id).WithError(err).Debug("proxy health check failed")
		}
		h.pool.MarkFailure(id)
		return
	}
	defer resp.Body.Close()
	h.pool.MarkSuccess(id, elapsed)
}

func mustParseProxyURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}
