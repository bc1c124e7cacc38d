package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"garage-backend/internal/config"
	"garage-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client and keeps it connected in the background.
// Redis only backs the cache and the rate limiter, so a lost connection
// degrades those features instead of failing requests.
type Client struct {
	client        *redis.Client
	config        config.RedisConfig
	log           *logger.Logger
	mu            sync.RWMutex
	isConnected   bool
	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
}

type HealthStatus struct {
	IsConnected    bool          `json:"isConnected"`
	LastPing       time.Time     `json:"lastPing"`
	ResponseTime   time.Duration `json:"responseTime"`
	ConnectionInfo string        `json:"connectionInfo"`
	Error          string        `json:"error,omitempty"`
}

// NewClient connects using cfg and starts the health check and reconnect loops.
func NewClient(cfg config.RedisConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:        cfg,
		log:           log.WithField("component", "redis"),
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.connect()
	go c.healthCheckLoop()
	go c.reconnectLoop()

	return c
}

// Options builds the go-redis options from cfg. A URL wins over host and port.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = cfg.MaxRetries
	opt.MinRetryBackoff = cfg.RetryDelay
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.PoolTimeout = cfg.PoolTimeout
	opt.ConnMaxIdleTime = cfg.IdleTimeout
	return opt, nil
}

func (c *Client) connect() {
	opt, err := Options(c.config)
	if err != nil {
		c.log.WithError(err).Warn("Invalid Redis URL, falling back to host and port")
		fallback := c.config
		fallback.URL = ""
		opt, _ = Options(fallback)
	}

	client := redis.NewClient(opt)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	c.mu.Lock()
	c.isConnected = err == nil
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).WithField("addr", opt.Addr).Warn("Redis connection test failed")
		return
	}
	c.log.WithField("addr", opt.Addr).Info("Redis connected")
}

// GetClient returns the current go-redis client. The instance changes after
// a reconnect, so callers should not hold on to it.
func (c *Client) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// HealthCheck pings Redis and schedules a reconnect when the ping fails.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	client := c.GetClient()

	status := HealthStatus{
		IsConnected:    c.IsConnected(),
		ConnectionInfo: c.addr(),
	}
	if client == nil {
		status.Error = "Redis client not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx).Err()
	status.ResponseTime = time.Since(start)
	status.LastPing = time.Now()

	c.mu.Lock()
	c.isConnected = err == nil
	c.mu.Unlock()

	status.IsConnected = err == nil
	if err != nil {
		status.Error = err.Error()
		c.triggerReconnect()
	}
	return status
}

func (c *Client) addr() string {
	if c.config.URL != "" {
		if opt, err := redis.ParseURL(c.config.URL); err == nil {
			return opt.Addr
		}
	}
	return fmt.Sprintf("%s:%s", c.config.Host, c.config.Port)
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if status := c.HealthCheck(c.ctx); !status.IsConnected {
				c.log.WithField("error", status.Error).Warn("Redis health check failed")
			}
		}
	}
}

// reconnectLoop retries with exponential backoff capped at 30s.
func (c *Client) reconnectLoop() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
			if c.IsConnected() {
				continue
			}

			c.log.Info("Attempting to reconnect to Redis")
			if old := c.GetClient(); old != nil {
				old.Close()
			}
			c.connect()

			if c.IsConnected() {
				c.log.Info("Reconnected to Redis")
				backoff = time.Second
				continue
			}

			c.log.WithField("retry_in", backoff.String()).Warn("Redis reconnect failed")
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			c.triggerReconnect()
		}
	}
}

// Close stops the background loops and closes the connection pool.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// GetConnectionStats reports pool statistics for the health endpoint.
func (c *Client) GetConnectionStats() map[string]interface{} {
	client := c.GetClient()
	if client == nil {
		return map[string]interface{}{"error": "Redis client not initialized"}
	}

	stats := client.PoolStats()
	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"totalConns":  stats.TotalConns,
		"idleConns":   stats.IdleConns,
		"staleConns":  stats.StaleConns,
		"isConnected": c.IsConnected(),
	}
}
