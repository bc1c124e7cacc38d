package cache

import (
	"garage-backend/pkg/logger"
	"garage-backend/pkg/redis"
)

func NewCacheManager(redisClient *redis.Client, config CacheConfig, log *logger.Logger) CacheManager {
	return NewRedisCacheManager(redisClient, config, log)
}

func NewDefaultCacheManager(redisClient *redis.Client, log *logger.Logger) CacheManager {
	return NewRedisCacheManager(redisClient, DefaultCacheConfig(), log)
}
