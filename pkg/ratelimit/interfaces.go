package ratelimit

import (
	"context"
	"time"
)

// RateLimiter decides whether a client may make one more request in a
// route category.
type RateLimiter interface {
	Allow(ctx context.Context, clientID, category string) (Decision, error)
	Limit(category string) RateLimit
	Category(method, route string) string
	GetStats() RateLimiterStats
	Close() error
}

type RateLimit struct {
	RequestsPerMinute int           `json:"requestsPerMinute"`
	BurstSize         int           `json:"burstSize"`
	WindowSize        time.Duration `json:"windowSize"`
}

// Decision is the outcome of one Allow call. RetryAfter is set only when
// the request was refused.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type RateLimiterStats struct {
	Backend         string  `json:"backend"`
	TotalRequests   int64   `json:"totalRequests"`
	BlockedRequests int64   `json:"blockedRequests"`
	BlockedPercent  float64 `json:"blockedPercent"`
	ActiveClients   int     `json:"activeClients"`
}

func blockedPercent(total, blocked int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(blocked) / float64(total) * 100
}
