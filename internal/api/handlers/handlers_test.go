package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"garage-backend/internal/config"
	"garage-backend/internal/maintenance"
	"garage-backend/internal/repository"
	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/ratelimit"
	"garage-backend/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		err       error
		status    int
		message   string
		retryable bool
	}{
		{"validation", maintenance.ValidationErrors{{Field: "mileage", Message: "required"}}, http.StatusBadRequest, "Validation failed", false},
		{"write", &services.WriteError{Action: "save", Resource: "vehicle", Err: errors.New("timeout")}, http.StatusServiceUnavailable, "Failed to save vehicle. Please try again.", true},
		{"wrapped write", fmt.Errorf("submit: %w", &services.WriteError{Action: "delete", Resource: "vehicle", Err: errors.New("x")}), http.StatusServiceUnavailable, "Failed to delete vehicle. Please try again.", true},
		{"credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials", false},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, "Invalid or expired token", false},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, services.ErrForbidden.Error(), false},
		{"role", services.ErrRoleNotAllowed, http.StatusForbidden, services.ErrRoleNotAllowed.Error(), false},
		{"missing vehicle", repository.ErrVehicleNotFound, http.StatusNotFound, "Vehicle not found", false},
		{"bad id", repository.ErrInvalidID, http.StatusNotFound, "Vehicle not found", false},
		{"missing user", repository.ErrUserNotFound, http.StatusNotFound, "User not found", false},
		{"unexpected", errors.New("mongo: no reachable servers"), http.StatusInternalServerError, "Failed to load things", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, hook := test.NewNullLogger()
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, logger.NewWithLogrus(l), tt.err, "load things")

			assert.Equal(t, tt.status, w.Code)
			var body struct {
				Message   string          `json:"message"`
				Error     string          `json:"error"`
				Fields    json.RawMessage `json:"fields"`
				Retryable bool            `json:"retryable"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.Empty(t, body.Error, "internal error text must not leak")

			if tt.status == http.StatusInternalServerError {
				require.Len(t, hook.Entries, 1)
				assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
			} else {
				assert.Empty(t, hook.Entries)
			}
		})
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context, *readpref.ReadPref) error { return f.err }

func healthRouter(h *HealthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.HealthCheck)
	return router
}

func get(router http.Handler, path string) (int, map[string]interface{}) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func redisConfig(addr string) config.RedisConfig {
	host, port, _ := net.SplitHostPort(addr)
	return config.RedisConfig{
		Host:        host,
		Port:        port,
		PoolSize:    2,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
	}
}

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(redisConfig(mr.Addr()), nil)
	defer redisClient.Close()

	h := NewHealthHandler(nil, redisClient)
	h.SetMongo(fakePinger{})
	limiter := ratelimit.NewMemoryRateLimiter(nil, nil)
	defer limiter.Close()
	h.SetRateLimiter(limiter)

	code, body := get(healthRouter(h), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	deps := body["services"].(map[string]interface{})
	assert.Contains(t, deps, "rateLimit")
	assert.Equal(t, true, deps["redis"].(map[string]interface{})["healthy"])
}

func TestHealthCheckDegradedWithoutRedis(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	h.SetMongo(fakePinger{})

	code, body := get(healthRouter(h), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealthCheckUnhealthyWithoutMongo(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	code, body := get(healthRouter(h), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])

	h.SetMongo(fakePinger{err: errors.New("server selection timeout")})
	code, body = get(healthRouter(h), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	mongo := body["services"].(map[string]interface{})["mongodb"].(map[string]interface{})
	assert.Equal(t, "server selection timeout", mongo["error"])
}
