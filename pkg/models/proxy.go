package models

import "time"

// ProxyProtocol is the scheme a proxy URL was parsed with.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySocks4 ProxyProtocol = "socks4"
	ProxySocks5 ProxyProtocol = "socks5"
)

// ProxyStatus is the pool's current view of a proxy's usability.
type ProxyStatus string

const (
	ProxyActive    ProxyStatus = "active"
	ProxyInactive  ProxyStatus = "inactive"
	ProxyUnhealthy ProxyStatus = "unhealthy"
	ProxyBanned    ProxyStatus = "banned"
)

// Proxy is one pool member with rotation and health-accounting state.
type Proxy struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	Protocol ProxyProtocol `json:"protocol"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"-"`

	Status ProxyStatus `json:"status"`

	SuccessCount        int64 `json:"success_count"`
	FailureCount        int64 `json:"failure_count"`
	ConsecutiveFailures int   `json:"consecutive_failures"`

	ResponseTime    time.Duration `json:"response_time"`
	AvgResponseTime time.Duration `json:"avg_response_time"`

	LastUsed    *time.Time `json:"last_used,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// SuccessRate returns the proxy's lifetime success ratio, 1.0 for an untried proxy.
func (p *Proxy) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(p.SuccessCount) / float64(total)
}

// TotalRequests returns the proxy's lifetime request count.
func (p *Proxy) TotalRequests() int64 {
	return p.SuccessCount + p.FailureCount
}

// RotationStrategy selects how get_next picks among active proxies.
type RotationStrategy string

const (
	RotationRoundRobin RotationStrategy = "round_robin"
	RotationRandom     RotationStrategy = "random"
	RotationWeighted   RotationStrategy = "weighted"
	RotationLeastUsed  RotationStrategy = "least_used"
)
