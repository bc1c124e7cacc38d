package ratelimit

import (
	"time"
)

// DefaultCategory applies to every route without an entry in Config.Routes.
const DefaultCategory = "default"

type Config struct {
	// Limits per route category.
	Limits map[string]RateLimit `json:"limits"`

	// Routes maps "METHOD route-pattern" (the gin pattern, e.g.
	// "GET /api/v1/vehicles/:id") to a category.
	Routes map[string]string `json:"routes"`

	KeyPrefix       string        `json:"keyPrefix"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
	Enabled         bool          `json:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Limits: map[string]RateLimit{
			// Sign-in is the credential guessing surface
			"auth":       {RequestsPerMinute: 10, BurstSize: 5, WindowSize: time.Minute},
			"auth_login": {RequestsPerMinute: 5, BurstSize: 5, WindowSize: time.Minute},

			"vehicles":        {RequestsPerMinute: 100, BurstSize: 20, WindowSize: time.Minute},
			"vehicles_write":  {RequestsPerMinute: 20, BurstSize: 5, WindowSize: time.Minute},
			"vehicles_delete": {RequestsPerMinute: 10, BurstSize: 3, WindowSize: time.Minute},

			"maintenance":          {RequestsPerMinute: 100, BurstSize: 20, WindowSize: time.Minute},
			"maintenance_create":   {RequestsPerMinute: 30, BurstSize: 10, WindowSize: time.Minute},
			"maintenance_validate": {RequestsPerMinute: 240, BurstSize: 60, WindowSize: time.Minute},

			"directory": {RequestsPerMinute: 120, BurstSize: 30, WindowSize: time.Minute},
			"live":      {RequestsPerMinute: 20, BurstSize: 5, WindowSize: time.Minute},
			"health":    {RequestsPerMinute: 1000, BurstSize: 100, WindowSize: time.Minute},

			DefaultCategory: {RequestsPerMinute: 60, BurstSize: 15, WindowSize: time.Minute},
		},
		Routes: map[string]string{
			"POST /api/v1/auth/login":    "auth_login",
			"POST /api/v1/auth/register": "auth",
			"POST /api/v1/auth/logout":   "auth",
			"POST /api/v1/auth/refresh":  "auth",
			"GET /api/v1/auth/profile":   "auth",
			"PATCH /api/v1/auth/profile": "auth",

			"GET /api/v1/vehicles":        "vehicles",
			"GET /api/v1/vehicles/:id":    "vehicles",
			"POST /api/v1/vehicles":       "vehicles_write",
			"PUT /api/v1/vehicles/:id":    "vehicles_write",
			"DELETE /api/v1/vehicles/:id": "vehicles_delete",

			"GET /api/v1/vehicles/:id/maintenance":  "maintenance",
			"GET /api/v1/vehicles/:id/summary":      "maintenance",
			"POST /api/v1/vehicles/:id/maintenance": "maintenance_create",
			"POST /api/v1/maintenance/validate":     "maintenance_validate",

			"GET /api/v1/catalog":   "directory",
			"GET /api/v1/mechanics": "directory",
			"GET /api/v1/ws":        "live",
			"GET /api/v1/health":    "health",
		},
		KeyPrefix:       "ratelimit:",
		CleanupInterval: 5 * time.Minute,
		Enabled:         true,
	}
}

// Category resolves the category of a matched route. Unmatched requests,
// where gin reports an empty pattern, use the default category.
func (c *Config) Category(method, route string) string {
	if category, ok := c.Routes[method+" "+route]; ok {
		return category
	}
	return DefaultCategory
}

// Limit returns the limit of category, falling back to the default category.
func (c *Config) Limit(category string) RateLimit {
	if limit, ok := c.Limits[category]; ok {
		return limit
	}
	if limit, ok := c.Limits[DefaultCategory]; ok {
		return limit
	}
	return RateLimit{RequestsPerMinute: 60, BurstSize: 15, WindowSize: time.Minute}
}
