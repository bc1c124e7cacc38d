package handlers

import (
	"context"
	"net/http"
	"time"

	"garage-backend/internal/websocket"
	"garage-backend/pkg/cache"
	"garage-backend/pkg/ratelimit"
	"garage-backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoPinger is satisfied by *mongo.Client.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

type HealthHandler struct {
	mongo       MongoPinger
	redisClient *redis.Client
	cache       cache.CacheManager
	limiter     ratelimit.RateLimiter
	ws          websocket.WebSocketManager
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// NewHealthHandler reports MongoDB as the only hard dependency. Redis backs
// the cache and rate limiter, so losing it degrades the service instead of
// failing it.
func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client) *HealthHandler {
	h := &HealthHandler{redisClient: redisClient}
	if mongoClient != nil {
		h.mongo = mongoClient
	}
	return h
}

func (h *HealthHandler) SetMongo(p MongoPinger) { h.mongo = p }

func (h *HealthHandler) SetCacheManager(m cache.CacheManager) { h.cache = m }

func (h *HealthHandler) SetRateLimiter(l ratelimit.RateLimiter) { h.limiter = l }

func (h *HealthHandler) SetWebSocketManager(m websocket.WebSocketManager) { h.ws = m }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	response := HealthResponse{
		Timestamp: time.Now(),
		Services:  make(map[string]interface{}),
	}

	mongoStatus := h.checkMongoDB(ctx)
	response.Services["mongodb"] = mongoStatus

	redisStatus := h.checkRedis(ctx)
	response.Services["redis"] = redisStatus

	if h.cache != nil {
		response.Services["cache"] = h.cache.GetCacheStats(ctx)
	}
	if h.limiter != nil {
		response.Services["rateLimit"] = h.limiter.GetStats()
	}
	if h.ws != nil {
		response.Services["websocket"] = h.ws.GetClientStats()
	}

	switch {
	case !mongoStatus["healthy"].(bool):
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	case !redisStatus["healthy"].(bool):
		response.Status = "degraded"
		c.JSON(http.StatusOK, response)
	default:
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	}
}

func (h *HealthHandler) checkMongoDB(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"service": "mongodb",
		"healthy": false,
	}

	if h.mongo == nil {
		status["error"] = "Database client not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.mongo.Ping(ctx, nil); err != nil {
		status["error"] = err.Error()
		return status
	}
	status["healthy"] = true
	status["message"] = "Connected"
	return status
}

func (h *HealthHandler) checkRedis(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"service": "redis",
		"healthy": false,
	}

	if h.redisClient == nil {
		status["error"] = "Redis client not initialized"
		return status
	}

	health := h.redisClient.HealthCheck(ctx)
	status["healthy"] = health.IsConnected
	status["connectionInfo"] = health.ConnectionInfo
	status["responseTime"] = health.ResponseTime.String()
	status["lastPing"] = health.LastPing
	if health.Error != "" {
		status["error"] = health.Error
	}
	status["connectionStats"] = h.redisClient.GetConnectionStats()

	return status
}
