package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. Shaped after the
// teacher's config.Config (same YAML-plus-env-override load path, same
// Server/Workers/LLM/Scraper/Redis/Logging sections) but re-pointed at the
// scrape-orchestrator's own env surface; resume/callback/DigitalOcean
// Spaces sections are dropped entirely since that domain no longer exists.
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
	} `yaml:"server"`

	Workers struct {
		PoolSize   int           `yaml:"pool_size" default:"10"` // also browser-pool instance cap
		QueueSize  int           `yaml:"queue_size" default:"100"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
		MaxRetries int           `yaml:"max_retries" default:"2"`
	} `yaml:"workers"`

	LLM struct {
		Provider    string        `yaml:"provider" default:"anthropic"`
		APIKey      string        `yaml:"api_key"`
		Models      []string      `yaml:"models"`
		MaxTokens   int           `yaml:"max_tokens" default:"4096"`
		Temperature float32       `yaml:"temperature" default:"0.1"`
		Timeout     time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"llm"`

	Scraper struct {
		UserAgent        string        `yaml:"user_agent"`
		RotateUserAgents bool          `yaml:"rotate_user_agents" default:"true"`
		MaxRetries       int           `yaml:"max_retries" default:"2"`
		RequestTimeout   time.Duration `yaml:"request_timeout" default:"10s"`
		HeadlessMode     bool          `yaml:"headless_mode" default:"true"`
		StealthMode      bool          `yaml:"stealth_mode" default:"true"`

		HTTPTimeout       time.Duration `yaml:"http_timeout" default:"10s"`
		JinaTimeout       time.Duration `yaml:"jina_timeout" default:"15s"`
		PlaywrightTimeout time.Duration `yaml:"playwright_timeout" default:"15s"`
		AIAgentTimeout    time.Duration `yaml:"ai_agent_timeout" default:"60s"`

		MinContentLength int `yaml:"min_content_length" default:"100"`

		Captcha struct {
			Provider        string        `yaml:"provider" default:"2captcha"`
			APIKey          string        `yaml:"api_key"`
			Timeout         time.Duration `yaml:"timeout" default:"120s"`
			EnableAutoSolve bool          `yaml:"enable_auto_solve" default:"true"`
		} `yaml:"captcha"`
	} `yaml:"scraper"`

	Firecrawl struct {
		APIKey     string        `yaml:"api_key"`
		APIURL     string        `yaml:"api_url" default:"https://api.firecrawl.dev"`
		Timeout    time.Duration `yaml:"timeout" default:"15s"`
		MaxRetries int           `yaml:"max_retries" default:"2"`
	} `yaml:"firecrawl"`

	Proxy struct {
		URLs                     []string      `yaml:"urls"`
		RotationStrategy         string        `yaml:"rotation_strategy" default:"round_robin"`
		MaxConsecutiveFailures   int           `yaml:"max_consecutive_failures" default:"3"`
		HealthCheckInterval      time.Duration `yaml:"health_check_interval" default:"5m"`
		HealthCheckTimeout       time.Duration `yaml:"health_check_timeout" default:"10s"`
	} `yaml:"proxy"`

	RateLimit struct {
		Enabled     bool  `yaml:"enabled" default:"true"`
		WindowMS    int64 `yaml:"window_ms" default:"60000"`
		MaxRequests int   `yaml:"max_requests" default:"100"`
	} `yaml:"rate_limit"`

	CircuitBreaker struct {
		Timeout                  time.Duration `yaml:"timeout" default:"10s"`
		ErrorThresholdPercentage float64       `yaml:"error_threshold_percentage" default:"50"`
		ResetTimeout             time.Duration `yaml:"reset_timeout" default:"30s"`
		MonitoringPeriod         time.Duration `yaml:"monitoring_period" default:"60s"`
		MinimumRequests          int           `yaml:"minimum_requests" default:"5"`
	} `yaml:"circuit_breaker"`

	Extraction struct {
		CosineSimilarityThreshold        float64 `yaml:"cosine_similarity_threshold" default:"0.15"`
		CosineSimilarityMaxEntities      int     `yaml:"cosine_similarity_max_entities" default:"20"`
		CosineSimilarityMinSegmentLength int     `yaml:"cosine_similarity_min_segment_length" default:"20"`
		RuleBasedDefaultConfidence       float64 `yaml:"rule_based_default_confidence" default:"0.7"`
		RuleBasedStrictMode              bool    `yaml:"rule_based_strict_mode" default:"false"`
	} `yaml:"extraction"`

	Validation struct {
		Strategy       string  `yaml:"strategy" default:"hybrid"`
		MinScore       float64 `yaml:"min_score" default:"0.6"`
		MinLength      int     `yaml:"min_length" default:"100"`
		CacheEnabled   bool    `yaml:"cache_enabled" default:"true"`
	} `yaml:"validation"`

	AIAgent struct {
		MaxPages               int           `yaml:"max_pages" default:"5"`
		MaxDepth               int           `yaml:"max_depth" default:"2"`
		MaxAjaxEndpoints       int           `yaml:"max_ajax_endpoints" default:"10"`
		FollowExternalLinks    bool          `yaml:"follow_external_links" default:"false"`
		DelayBetweenRequests   time.Duration `yaml:"delay_between_requests" default:"500ms"`
	} `yaml:"ai_agent"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`

	Redis struct {
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"redis"`

	Cache struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		TTL     time.Duration `yaml:"ttl" default:"15m"`
		Mode    string        `yaml:"mode" default:"enabled"`
	} `yaml:"cache"`

	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database" default:"aiscrape"`
	} `yaml:"mongo"`

	MaxConcurrentScrapes int `yaml:"max_concurrent_scrapes" default:"10"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from an optional YAML file, then overrides
// every field with the matching environment variable, mirroring the
// teacher's godotenv-then-yaml-then-env precedence.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{}

	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Workers.PoolSize = 10
	config.Workers.QueueSize = 100
	config.Workers.Timeout = 30 * time.Second
	config.Workers.MaxRetries = 2

	config.LLM.Provider = "anthropic"
	config.LLM.Models = []string{"claude-3-5-sonnet-20241022", "claude-3-haiku-20240307"}
	config.LLM.MaxTokens = 4096
	config.LLM.Temperature = 0.1
	config.LLM.Timeout = 30 * time.Second

	config.Scraper.MaxRetries = 2
	config.Scraper.RequestTimeout = 10 * time.Second
	config.Scraper.HeadlessMode = true
	config.Scraper.StealthMode = true
	config.Scraper.RotateUserAgents = true
	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	config.Scraper.HTTPTimeout = 10 * time.Second
	config.Scraper.JinaTimeout = 15 * time.Second
	config.Scraper.PlaywrightTimeout = 15 * time.Second
	config.Scraper.AIAgentTimeout = 60 * time.Second
	config.Scraper.MinContentLength = 100
	config.Scraper.Captcha.Provider = "2captcha"
	config.Scraper.Captcha.Timeout = 120 * time.Second
	config.Scraper.Captcha.EnableAutoSolve = true

	config.Firecrawl.APIURL = "https://api.firecrawl.dev"
	config.Firecrawl.Timeout = 15 * time.Second
	config.Firecrawl.MaxRetries = 2

	config.Proxy.RotationStrategy = "round_robin"
	config.Proxy.MaxConsecutiveFailures = 3
	config.Proxy.HealthCheckInterval = 5 * time.Minute
	config.Proxy.HealthCheckTimeout = 10 * time.Second

	config.RateLimit.Enabled = true
	config.RateLimit.WindowMS = 60000
	config.RateLimit.MaxRequests = 100

	config.CircuitBreaker.Timeout = 10 * time.Second
	config.CircuitBreaker.ErrorThresholdPercentage = 50
	config.CircuitBreaker.ResetTimeout = 30 * time.Second
	config.CircuitBreaker.MonitoringPeriod = 60 * time.Second
	config.CircuitBreaker.MinimumRequests = 5

	config.Extraction.CosineSimilarityThreshold = 0.15
	config.Extraction.CosineSimilarityMaxEntities = 20
	config.Extraction.CosineSimilarityMinSegmentLength = 20
	config.Extraction.RuleBasedDefaultConfidence = 0.7

	config.Validation.Strategy = "hybrid"
	config.Validation.MinScore = 0.6
	config.Validation.MinLength = 100
	config.Validation.CacheEnabled = true

	config.AIAgent.MaxPages = 5
	config.AIAgent.MaxDepth = 2
	config.AIAgent.MaxAjaxEndpoints = 10
	config.AIAgent.DelayBetweenRequests = 500 * time.Millisecond

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.DB = 0
	config.Redis.Timeout = 5 * time.Second

	config.Cache.Enabled = true
	config.Cache.TTL = 15 * time.Minute
	config.Cache.Mode = "enabled"

	config.Mongo.Database = "aiscrape"
	config.MaxConcurrentScrapes = 10

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	config.loadFromEnv()

	return config, nil
}

// loadFromEnv overrides config with the canonical scrape-orchestrator
// environment variables; unset variables leave the YAML/default value in place.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}

	if v := os.Getenv("MAX_CONCURRENT_SCRAPES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentScrapes = n
			c.Workers.PoolSize = n
		}
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODELS"); v != "" {
		c.LLM.Models = strings.Split(v, ",")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("USER_AGENT"); v != "" {
		c.Scraper.UserAgent = v
	}
	if v := os.Getenv("ROTATE_USER_AGENTS"); v != "" {
		c.Scraper.RotateUserAgents = parseBool(v, c.Scraper.RotateUserAgents)
	}
	if v := os.Getenv("MIN_CONTENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scraper.MinContentLength = n
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.Scraper.HTTPTimeout)
	}
	if v := os.Getenv("JINA_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.Scraper.JinaTimeout)
	}
	if v := os.Getenv("PLAYWRIGHT_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.Scraper.PlaywrightTimeout)
	}
	if v := os.Getenv("AI_AGENT_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.Scraper.AIAgentTimeout)
	}
	if v := os.Getenv("HEADLESS_MODE"); v != "" {
		c.Scraper.HeadlessMode = parseBool(v, c.Scraper.HeadlessMode)
	}

	if v := os.Getenv("CAPTCHA_API_KEY"); v != "" {
		c.Scraper.Captcha.APIKey = v
	}
	if v := os.Getenv("2CAPTCHA_API_KEY"); v != "" {
		c.Scraper.Captcha.APIKey = v
	}

	if v := os.Getenv("FIRECRAWL_API_KEY"); v != "" {
		c.Firecrawl.APIKey = v
	}
	if v := os.Getenv("FIRECRAWL_API_URL"); v != "" {
		c.Firecrawl.APIURL = v
	}

	if v := os.Getenv("PROXY_URLS"); v != "" {
		c.Proxy.URLs = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("PROXY_URL"); v != "" && len(c.Proxy.URLs) == 0 {
		c.Proxy.URLs = []string{v}
	}
	if v := os.Getenv("PROXY_ROTATION_STRATEGY"); v != "" {
		c.Proxy.RotationStrategy = v
	}
	if v := os.Getenv("PROXY_HEALTH_CHECK_INTERVAL"); v != "" {
		parseDurationInto(v, &c.Proxy.HealthCheckInterval)
	}
	if v := os.Getenv("PROXY_HEALTH_CHECK_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.Proxy.HealthCheckTimeout)
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = parseBool(v, c.RateLimit.Enabled)
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.WindowMS = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.MaxRequests = n
		}
	}

	if v := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.CircuitBreaker.Timeout)
	}
	if v := os.Getenv("CIRCUIT_BREAKER_ERROR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CircuitBreaker.ErrorThresholdPercentage = f
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_RESET_TIMEOUT"); v != "" {
		parseDurationInto(v, &c.CircuitBreaker.ResetTimeout)
	}
	if v := os.Getenv("CIRCUIT_BREAKER_MIN_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CircuitBreaker.MinimumRequests = n
		}
	}

	if v := os.Getenv("COSINE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Extraction.CosineSimilarityThreshold = f
		}
	}
	if v := os.Getenv("COSINE_SIMILARITY_MAX_ENTITIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extraction.CosineSimilarityMaxEntities = n
		}
	}
	if v := os.Getenv("COSINE_SIMILARITY_MIN_SEGMENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extraction.CosineSimilarityMinSegmentLength = n
		}
	}
	if v := os.Getenv("RULE_BASED_DEFAULT_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Extraction.RuleBasedDefaultConfidence = f
		}
	}
	if v := os.Getenv("RULE_BASED_STRICT_MODE"); v != "" {
		c.Extraction.RuleBasedStrictMode = parseBool(v, c.Extraction.RuleBasedStrictMode)
	}

	if v := os.Getenv("CONTENT_VALIDATION_STRATEGY"); v != "" {
		c.Validation.Strategy = v
	}
	if v := os.Getenv("CONTENT_VALIDATION_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Validation.MinScore = f
		}
	}
	if v := os.Getenv("CONTENT_VALIDATION_MIN_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Validation.MinLength = n
		}
	}
	if v := os.Getenv("CONTENT_VALIDATION_CACHE_ENABLED"); v != "" {
		c.Validation.CacheEnabled = parseBool(v, c.Validation.CacheEnabled)
	}

	if v := os.Getenv("AI_AGENT_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AIAgent.MaxPages = n
		}
	}
	if v := os.Getenv("AI_AGENT_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AIAgent.MaxDepth = n
		}
	}
	if v := os.Getenv("AI_AGENT_MAX_AJAX_ENDPOINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AIAgent.MaxAjaxEndpoints = n
		}
	}
	if v := os.Getenv("AI_AGENT_FOLLOW_EXTERNAL_LINKS"); v != "" {
		c.AIAgent.FollowExternalLinks = parseBool(v, c.AIAgent.FollowExternalLinks)
	}
	if v := os.Getenv("AI_AGENT_DELAY_BETWEEN_REQUESTS"); v != "" {
		parseDurationInto(v, &c.AIAgent.DelayBetweenRequests)
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}

	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v, c.Cache.Enabled)
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		parseDurationInto(v, &c.Cache.TTL)
	}
	if v := os.Getenv("CACHE_MODE"); v != "" {
		c.Cache.Mode = v
	}

	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		c.Mongo.Database = v
	}

	c.loadLoggingAdapterEnvVars()
}

// loadLoggingAdapterEnvVars mirrors the teacher's Betterstack adapter wiring.
func (c *Config) loadLoggingAdapterEnvVars() {
	if v := os.Getenv("BETTERSTACK_ENABLED"); v != "" {
		enabled := parseBool(v, false)
		for i := range c.Logging.Adapters {
			if c.Logging.Adapters[i].Name == "betterstack" || c.Logging.Adapters[i].Type == "betterstack" {
				c.Logging.Adapters[i].Enabled = enabled
				break
			}
		}
	}
	for i := range c.Logging.Adapters {
		adapter := &c.Logging.Adapters[i]
		if adapter.Type != "betterstack" {
			continue
		}
		if token := os.Getenv("BETTERSTACK_SOURCE_TOKEN"); token != "" {
			setAdapterOption(adapter, "source_token", token)
		}
		if endpoint := os.Getenv("BETTERSTACK_ENDPOINT"); endpoint != "" {
			setAdapterOption(adapter, "endpoint", endpoint)
		}
	}
}

func setAdapterOption(adapter *struct {
	Name    string                 `yaml:"name"`
	Type    string                 `yaml:"type"`
	Enabled bool                   `yaml:"enabled"`
	Options map[string]interface{} `yaml:"options"`
}, key string, value interface{}) {
	if adapter.Options == nil {
		adapter.Options = make(map[string]interface{})
	}
	adapter.Options[key] = value
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func parseDurationInto(v string, dst *time.Duration) {
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
