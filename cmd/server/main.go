package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mendableai/firecrawl-go"

	"github.com/aeodev/aiscrape/internal/api/handlers"
	"github.com/aeodev/aiscrape/internal/api/routes"
	"github.com/aeodev/aiscrape/internal/cache"
	"github.com/aeodev/aiscrape/internal/circuitbreaker"
	"github.com/aeodev/aiscrape/internal/config"
	"github.com/aeodev/aiscrape/internal/extraction"
	"github.com/aeodev/aiscrape/internal/fetcher"
	"github.com/aeodev/aiscrape/internal/llmclient"
	"github.com/aeodev/aiscrape/internal/logging"
	"github.com/aeodev/aiscrape/internal/orchestrator"
	"github.com/aeodev/aiscrape/internal/proxy"
	"github.com/aeodev/aiscrape/internal/ratelimit"
	"github.com/aeodev/aiscrape/internal/retry"
	"github.com/aeodev/aiscrape/internal/scraper/captcha"
	"github.com/aeodev/aiscrape/internal/scraper/engines/headed"
	"github.com/aeodev/aiscrape/internal/validator"
	"github.com/aeodev/aiscrape/pkg/models"

	"github.com/labstack/echo/v4"
)

func main() {
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("starting aiscrape", map[string]interface{}{"port": cfg.Server.Port})

	cacheMgr := cache.NewManager(cache.Config{
		RedisURL:      cfg.Redis.URL,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Prefix:        "aiscrape:",
		DefaultTTL:    cfg.Cache.TTL,
		Mode:          cache.Mode(cfg.Cache.Mode),
	}, logger)
	defer cacheMgr.Close()

	proxyPool := proxy.New(cfg.Proxy.MaxConsecutiveFailures)
	for _, raw := range cfg.Proxy.URLs {
		p, err := proxy.ParseProxyURL(raw)
		if err != nil {
			logger.Warn("skipping unparseable proxy URL", map[string]interface{}{"error": err.Error()})
			continue
		}
		proxyPool.Add(p)
	}
	healthChecker := proxy.NewHealthChecker(proxyPool, proxy.HealthCheckConfig{
		Interval:    cfg.Proxy.HealthCheckInterval,
		Timeout:     cfg.Proxy.HealthCheckTimeout,
		Concurrency: 5,
	}, logrus.StandardLogger())
	healthCtx, stopHealth := context.WithCancel(context.Background())
	healthChecker.Start(healthCtx)
	defer stopHealth()

	breakerCfg := models.CircuitConfig{
		Timeout:                  cfg.CircuitBreaker.Timeout,
		ErrorThresholdPercentage: cfg.CircuitBreaker.ErrorThresholdPercentage,
		ResetTimeout:             cfg.CircuitBreaker.ResetTimeout,
		MonitoringPeriod:         cfg.CircuitBreaker.MonitoringPeriod,
		MinimumRequests:          cfg.CircuitBreaker.MinimumRequests,
		Enabled:                  true,
	}
	breakers := circuitbreaker.NewRegistry(breakerCfg)

	limiter := ratelimit.New()

	llmClient := llmclient.New(llmclient.Config{
		APIKey:      cfg.LLM.APIKey,
		Models:      cfg.LLM.Models,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logrus.StandardLogger())

	registry := buildExtractionRegistry(cfg, llmClient)

	validatorStrategy := buildValidatorStrategy(cfg, llmClient)
	contentValidator := validator.New(validatorStrategy, cacheMgr, cfg.Validation.CacheEnabled)

	browserManager := headed.NewBrowserManager(cfg).WithProxyPool(proxyPool, models.RotationStrategy(cfg.Proxy.RotationStrategy))
	defer browserManager.Cleanup()

	var captchaSolver captcha.CaptchaSolver
	if cfg.Scraper.Captcha.EnableAutoSolve && cfg.Scraper.Captcha.APIKey != "" {
		captchaSolver = captcha.NewTwoCaptchaSolver(cfg)
	}

	httpCfg := fetcher.DefaultHTTPConfig()
	httpCfg.Timeout = cfg.Scraper.HTTPTimeout
	httpFetcher := fetcher.NewHTTPFetcher(httpCfg).WithProxyPool(proxyPool, models.RotationStrategy(cfg.Proxy.RotationStrategy))

	var readerFetcher *fetcher.ReaderFetcher
	if cfg.Firecrawl.APIKey != "" {
		app, err := firecrawl.NewFirecrawlApp(cfg.Firecrawl.APIKey, cfg.Firecrawl.APIURL)
		if err != nil {
			logger.Warn("failed to initialize firecrawl reader tier", map[string]interface{}{"error": err.Error()})
		} else {
			readerFetcher = fetcher.NewReaderFetcher(app, fetcher.ReaderConfig{
				Timeout:    cfg.Firecrawl.Timeout,
				MaxRetries: cfg.Firecrawl.MaxRetries,
				BaseDelay:  500 * time.Millisecond,
			})
		}
	}

	headlessFetcher := fetcher.NewHeadlessFetcher(browserManager, fetcher.DefaultHeadlessConfig())
	smartFetcher := fetcher.NewSmartFetcher(browserManager, llmClient, captchaSolver, fetcher.DefaultSmartConfig())

	crawlCfg := models.CrawlConfig{
		MaxPages:             cfg.AIAgent.MaxPages,
		MaxDepth:             cfg.AIAgent.MaxDepth,
		MaxAjaxEndpoints:     cfg.AIAgent.MaxAjaxEndpoints,
		FollowExternalLinks:  cfg.AIAgent.FollowExternalLinks,
		DelayBetweenRequests: cfg.AIAgent.DelayBetweenRequests,
		Timeout:              cfg.Scraper.AIAgentTimeout,
	}
	agentFetcher := fetcher.NewAgentFetcher(httpFetcher, llmClient, crawlCfg, fetcher.DefaultAgentConfig())

	tiers := map[models.ScraperType]fetcher.Fetcher{
		models.ScraperHTTP:     httpFetcher,
		models.ScraperHeadless: headlessFetcher,
		models.ScraperSmart:    smartFetcher,
		models.ScraperAiAgent:  agentFetcher,
	}
	cascade := []fetcher.Fetcher{httpFetcher}
	if readerFetcher != nil {
		tiers[models.ScraperReader] = readerFetcher
		cascade = append(cascade, readerFetcher)
	}
	cascade = append(cascade, headlessFetcher)

	store, err := buildJobStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialize job store", map[string]interface{}{"error": err.Error()})
	}

	orchCfg := orchestrator.Config{
		MaxConcurrent:    cfg.MaxConcurrentScrapes,
		QueueSize:        cfg.Workers.QueueSize,
		MinContentLength: cfg.Scraper.MinContentLength,
		RetryPolicy:      retry.Policy{BaseDelay: time.Second, MaxRetries: cfg.Workers.MaxRetries, MaxDelay: 30 * time.Second},
	}
	orch := orchestrator.New(store, cascade, tiers, registry, contentValidator, llmClient, orchCfg, logrus.StandardLogger(), cacheMgr, breakers)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	orch.Start(rootCtx)

	e := echo.New()
	deps := handlers.Dependencies{Orchestrator: orch, Cache: cacheMgr, LLM: llmClient}
	routes.SetupRoutes(e, cfg, orch, deps, limiter)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", map[string]interface{}{"error": err.Error()})
		}

		stopHealth()
		if err := orch.Stop(shutdownCtx); err != nil {
			logger.Error("error stopping orchestrator", map[string]interface{}{"error": err.Error()})
		}
		cancelRoot()
		browserManager.Cleanup()
	}()

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("listening", map[string]interface{}{"address": address})
	if err := e.Start(address); err != nil {
		logger.Info("server stopped", map[string]interface{}{"reason": err.Error()})
	}
}

// buildJobStore picks the Mongo-backed store when MONGODB_URI is configured,
// matching spec.md's "job store is an abstract repository" scoping note --
// the orchestrator only ever sees the JobStore interface.
func buildJobStore(cfg *config.Config) (orchestrator.JobStore, error) {
	if cfg.Mongo.URI == "" {
		return orchestrator.NewInMemoryJobStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return orchestrator.NewMongoJobStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
}

// buildExtractionRegistry wires the three strategies of spec.md §4.4 behind
// the fallback-capable registry, preferring the LLM strategy when an API key
// is configured and always keeping rule-based and cosine-similarity as
// fallbacks that need no external credentials.
func buildExtractionRegistry(cfg *config.Config, llmClient *llmclient.Client) *extraction.Registry {
	registry := extraction.NewRegistry()

	if cfg.LLM.APIKey != "" {
		limit := extraction.ProviderLimit{Provider: cfg.LLM.Provider, Models: cfg.LLM.Models, MaxContent: 150_000 * 3}
		registry.Register(extraction.NewLLMStrategy(llmClient, limit), true)
	}

	registry.Register(extraction.NewRuleBasedStrategy(defaultRuleSets()), cfg.LLM.APIKey == "")
	registry.Register(extraction.NewCosineSimilarityStrategy(
		cfg.Extraction.CosineSimilarityThreshold,
		cfg.Extraction.CosineSimilarityMaxEntities,
	), false)

	return registry
}

// defaultRuleSets gives the rule-based strategy a starting library covering
// the entity shapes spec.md §3 names, so it is never registered empty
// (NewRuleBasedStrategy.IsAvailable is false for an empty rule-set list).
func defaultRuleSets() []extraction.RuleSet {
	return []extraction.RuleSet{
		{
			Name: "contact", Priority: 10, Enabled: true,
			Rules: []extraction.Rule{
				{Name: "email", EntityType: models.EntityContact, Selector: "a[href^='mailto:']", Attribute: "href", Transform: "parseEmail"},
				{Name: "phone", EntityType: models.EntityContact, Selector: "a[href^='tel:']", Attribute: "href", Transform: "parsePhone"},
			},
		},
		{
			Name: "pricing", Priority: 8, Enabled: true,
			Rules: []extraction.Rule{
				{Name: "price", EntityType: models.EntityPricing, Selector: "[class*='price'], [itemprop='price']", Text: true, Transform: "trim", Multiple: true},
			},
		},
		{
			Name: "article", Priority: 6, Enabled: true,
			Rules: []extraction.Rule{
				{Name: "title", EntityType: models.EntityArticle, Selector: "h1", Text: true, Transform: "trim"},
				{Name: "author", EntityType: models.EntityPerson, Selector: "[rel='author'], [itemprop='author']", Text: true, Transform: "trim"},
			},
		},
		{
			Name: "product", Priority: 5, Enabled: true,
			Rules: []extraction.Rule{
				{Name: "name", EntityType: models.EntityProduct, Selector: "[itemprop='name'], h1.product-title", Text: true, Transform: "trim"},
			},
		},
	}
}

// buildValidatorStrategy picks the strategy named by the configured
// validation strategy ("heuristic", "ai" or "rule_based") and uses Hybrid
// for any other value, including the unset default.
func buildValidatorStrategy(cfg *config.Config, llmClient *llmclient.Client) validator.Strategy {
	switch cfg.Validation.Strategy {
	case "heuristic":
		return validator.NewHeuristicStrategy(cfg.Validation.MinScore)
	case "ai":
		return validator.NewAIStrategy(llmClient)
	case "rule_based":
		return validator.NewRuleBasedStrategy(cfg.Validation.MinScore)
	default:
		return validator.NewHybridStrategy(cfg.Validation.MinScore, llmClient)
	}
}
