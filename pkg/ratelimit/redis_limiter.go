package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"garage-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// fixedWindow counts requests per key in a window that starts at the first
// request. It returns {allowed, remaining, retry_after_ms}.
var fixedWindow = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local count = tonumber(redis.call('HGET', key, 'count')) or 0
local start = tonumber(redis.call('HGET', key, 'window_start')) or now

if now - start >= window then
	count = 0
	start = now
end

local allowed = 0
if count < burst then
	allowed = 1
	count = count + 1
end

redis.call('HSET', key, 'count', count, 'window_start', start)
redis.call('PEXPIRE', key, window + 1000)

local retry = 0
if allowed == 0 then
	retry = start + window - now
end
return {allowed, burst - count, retry}
`)

var errClientUnavailable = errors.New("redis client unavailable")

// RedisRateLimiter shares counters between server instances through Redis.
type RedisRateLimiter struct {
	client  func() *redis.Client
	config  *Config
	log     *logger.Logger
	now     func() time.Time
	total   int64
	blocked int64

	mu      sync.Mutex
	clients map[string]time.Time

	stop chan struct{}
	once sync.Once
}

// NewRedisRateLimiter takes a client getter because the shared Redis client
// is replaced on reconnect.
func NewRedisRateLimiter(client func() *redis.Client, config *Config, log *logger.Logger) *RedisRateLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}

	limiter := &RedisRateLimiter{
		client:  client,
		config:  config,
		log:     log.WithField("component", "ratelimit"),
		now:     time.Now,
		clients: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

func (r *RedisRateLimiter) Allow(ctx context.Context, clientID, category string) (Decision, error) {
	if !r.config.Enabled {
		return Decision{Allowed: true}, nil
	}

	atomic.AddInt64(&r.total, 1)
	r.touch(clientID)

	client := r.client()
	if client == nil {
		return Decision{}, errClientUnavailable
	}

	limit := r.config.Limit(category)
	key := fmt.Sprintf("%s%s:%s", r.config.KeyPrefix, category, clientID)

	result, err := fixedWindow.Run(ctx, client, []string{key},
		limit.BurstSize,
		limit.WindowSize.Milliseconds(),
		r.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result %v", result)
	}

	decision := Decision{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
	}
	if !decision.Allowed {
		atomic.AddInt64(&r.blocked, 1)
		decision.RetryAfter = time.Duration(result[2]) * time.Millisecond
	}
	return decision, nil
}

func (r *RedisRateLimiter) Limit(category string) RateLimit {
	return r.config.Limit(category)
}

func (r *RedisRateLimiter) Category(method, route string) string {
	return r.config.Category(method, route)
}

func (r *RedisRateLimiter) GetStats() RateLimiterStats {
	total := atomic.LoadInt64(&r.total)
	blocked := atomic.LoadInt64(&r.blocked)

	r.mu.Lock()
	active := len(r.clients)
	r.mu.Unlock()

	return RateLimiterStats{
		Backend:         "redis",
		TotalRequests:   total,
		BlockedRequests: blocked,
		BlockedPercent:  blockedPercent(total, blocked),
		ActiveClients:   active,
	}
}

func (r *RedisRateLimiter) Close() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

func (r *RedisRateLimiter) touch(clientID string) {
	r.mu.Lock()
	r.clients[clientID] = r.now()
	r.mu.Unlock()
}

// cleanupLoop forgets clients idle for longer than the cleanup interval.
// Counter keys in Redis expire on their own.
func (r *RedisRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.forgetIdle(); n > 0 {
				r.log.WithField("clients", n).Debug("Forgot idle rate limit clients")
			}
		}
	}
}

func (r *RedisRateLimiter) forgetIdle() int {
	cutoff := r.now().Add(-r.config.CleanupInterval)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, seen := range r.clients {
		if seen.Before(cutoff) {
			delete(r.clients, id)
			n++
		}
	}
	return n
}
