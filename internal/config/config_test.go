package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017/garage")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Hour, cfg.OrphanAuditInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_DIAL_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("ORPHAN_AUDIT_INTERVAL", "15m")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 15*time.Minute, cfg.OrphanAuditInterval)
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("REDIS_POOL_SIZE", "lots")
	assert.Equal(t, 10, getEnvAsInt("REDIS_POOL_SIZE", 10))
}
