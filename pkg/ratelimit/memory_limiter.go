package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"garage-backend/pkg/logger"
)

// tokenBucket refills continuously at RequestsPerMinute up to BurstSize.
type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

// MemoryRateLimiter keeps token buckets in process. It serves a single
// instance deployment or a server started without Redis.
type MemoryRateLimiter struct {
	config  *Config
	log     *logger.Logger
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	total   int64
	blocked int64

	stop chan struct{}
	once sync.Once
}

func NewMemoryRateLimiter(config *Config, log *logger.Logger) *MemoryRateLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}

	limiter := &MemoryRateLimiter{
		config:  config,
		log:     log.WithField("component", "ratelimit"),
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

func (m *MemoryRateLimiter) Allow(_ context.Context, clientID, category string) (Decision, error) {
	if !m.config.Enabled {
		return Decision{Allowed: true}, nil
	}

	limit := m.config.Limit(category)
	capacity := float64(limit.BurstSize)
	perSecond := float64(limit.RequestsPerMinute) / 60
	key := category + ":" + clientID
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++

	bucket, ok := m.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: capacity, lastSeen: now}
		m.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens = math.Min(capacity, bucket.tokens+elapsed*perSecond)
	bucket.lastSeen = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return Decision{Allowed: true, Remaining: int(bucket.tokens)}, nil
	}

	m.blocked++
	retry := time.Minute
	if perSecond > 0 {
		retry = time.Duration((1 - bucket.tokens) / perSecond * float64(time.Second))
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

func (m *MemoryRateLimiter) Limit(category string) RateLimit {
	return m.config.Limit(category)
}

func (m *MemoryRateLimiter) Category(method, route string) string {
	return m.config.Category(method, route)
}

func (m *MemoryRateLimiter) GetStats() RateLimiterStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return RateLimiterStats{
		Backend:         "memory",
		TotalRequests:   m.total,
		BlockedRequests: m.blocked,
		BlockedPercent:  blockedPercent(m.total, m.blocked),
		ActiveClients:   len(m.buckets),
	}
}

func (m *MemoryRateLimiter) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.evictIdle(time.Hour); n > 0 {
				m.log.WithField("buckets", n).Debug("Evicted idle rate limit buckets")
			}
		}
	}
}

func (m *MemoryRateLimiter) evictIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, bucket := range m.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
			n++
		}
	}
	return n
}
