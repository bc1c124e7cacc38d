package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	MongoURI       string
	MongoDatabase  string
	JWTSecret      string
	JWTExpiry      string
	AllowedOrigins []string
	Redis          RedisConfig
	Log            LogConfig
	RateLimit      RateLimitConfig

	// OrphanAuditInterval controls how often maintenance records of deleted vehicles are counted.
	OrphanAuditInterval time.Duration
}

type RedisConfig struct {
	URL                string
	Host               string
	Port               string
	Password           string
	DB                 int
	PoolSize           int
	MinIdleConns       int
	MaxRetries         int
	RetryDelay         time.Duration
	DialTimeout        time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	PoolTimeout        time.Duration
	IdleTimeout        time.Duration
	IdleCheckFrequency time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type RateLimitConfig struct {
	Enabled bool
	Backend string // redis or memory
}

func Load() *Config {
	// .env is optional in containers where the environment is injected directly
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		log.Fatal("MONGO_URI environment variable is not set")
	}

	allowedOrigins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		MongoURI:            mongoURI,
		MongoDatabase:       os.Getenv("MONGO_DB"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTExpiry:           os.Getenv("JWT_EXPIRY"),
		AllowedOrigins:      origins,
		Redis:               loadRedisConfig(),
		Log:                 loadLogConfig(),
		RateLimit:           loadRateLimitConfig(),
		OrphanAuditInterval: getEnvAsDuration("ORPHAN_AUDIT_INTERVAL", time.Hour),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:                os.Getenv("REDIS_URL"),
		Host:               getEnv("REDIS_HOST", "localhost"),
		Port:               getEnv("REDIS_PORT", "6379"),
		Password:           os.Getenv("REDIS_PASSWORD"),
		DB:                 getEnvAsInt("REDIS_DB", 0),
		PoolSize:           getEnvAsInt("REDIS_POOL_SIZE", 10),
		MinIdleConns:       getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		MaxRetries:         getEnvAsInt("REDIS_MAX_RETRIES", 3),
		RetryDelay:         getEnvAsDuration("REDIS_RETRY_DELAY", 500*time.Millisecond),
		DialTimeout:        getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:        getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout:       getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		PoolTimeout:        getEnvAsDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
		IdleTimeout:        getEnvAsDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		IdleCheckFrequency: getEnvAsDuration("REDIS_IDLE_CHECK_FREQUENCY", time.Minute),
	}
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "text"),
		Output: getEnv("LOG_OUTPUT", "stdout"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: getEnvAsBool("RATE_LIMIT_ENABLED", true),
		Backend: getEnv("RATE_LIMIT_BACKEND", "redis"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
