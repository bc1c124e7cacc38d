package middleware

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"time"

	"garage-backend/pkg/logger"
	"garage-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware limits requests per client and route category. A
// limiter failure lets the request through.
func RateLimitMiddleware(limiter ratelimit.RateLimiter, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithField("component", "ratelimit")

	return func(c *gin.Context) {
		clientID := getClientID(c)
		category := limiter.Category(c.Request.Method, c.FullPath())

		decision, err := limiter.Allow(c.Request.Context(), clientID, category)
		if err != nil {
			log.WithError(err).WithField("category", category).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		limit := limiter.Limit(category)
		setRateLimitHeaders(c, limit, decision)

		if !decision.Allowed {
			log.WithFields(map[string]interface{}{
				"client":   clientID,
				"category": category,
			}).Debug("Request rate limited")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "Rate limit exceeded",
				"message":    fmt.Sprintf("Too many requests. Try again in %v", decision.RetryAfter.Round(time.Second)),
				"retryAfter": retryAfterSeconds(decision.RetryAfter),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// getClientID prefers the authenticated user and falls back to the client
// address plus a hash of the user agent.
func getClientID(c *gin.Context) string {
	if uid := c.GetString(UserIDKey); uid != "" {
		return "user:" + uid
	}
	return fmt.Sprintf("anon:%s:%s", c.ClientIP(), hashString(c.GetHeader("User-Agent")))
}

func hashString(s string) string {
	if s == "" {
		return "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func setRateLimitHeaders(c *gin.Context, limit ratelimit.RateLimit, decision ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit.RequestsPerMinute))
	c.Header("X-RateLimit-Window", strconv.Itoa(int(limit.WindowSize.Seconds())))
	c.Header("X-RateLimit-Burst", strconv.Itoa(limit.BurstSize))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

	if !decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.RetryAfter).Unix(), 10))
	}
}
