package models

import "time"

// RateLimitConfig is the policy a key is checked against.
type RateLimitConfig struct {
	WindowMS    int64 `yaml:"window_ms" default:"60000"`
	MaxRequests int   `yaml:"max_requests" default:"100"`
	Enabled     bool  `yaml:"enabled" default:"true"`
}

// RateLimitBucket is the sliding-window counter state for one key.
type RateLimitBucket struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// RateLimitResult is what check_limit returns to the caller.
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
