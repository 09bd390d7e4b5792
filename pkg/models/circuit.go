package models

import "time"

// CircuitState is the breaker's current gate position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitConfig configures one breaker instance.
type CircuitConfig struct {
	Timeout                   time.Duration `yaml:"timeout" default:"10s"`
	ErrorThresholdPercentage  float64       `yaml:"error_threshold_percentage" default:"50"`
	ResetTimeout              time.Duration `yaml:"reset_timeout" default:"30s"`
	MonitoringPeriod          time.Duration `yaml:"monitoring_period" default:"60s"`
	MinimumRequests           int           `yaml:"minimum_requests" default:"5"`
	Enabled                   bool          `yaml:"enabled" default:"true"`
}

// CircuitStats is the read-only snapshot returned by get_stats.
type CircuitStats struct {
	State          CircuitState `json:"state"`
	Successes      int64        `json:"successes"`
	Failures       int64        `json:"failures"`
	Total          int64        `json:"total"`
	ErrorRate      float64      `json:"error_rate"`
	LastFailure    *time.Time   `json:"last_failure,omitempty"`
	NextAttempt    *time.Time   `json:"next_attempt,omitempty"`
}
