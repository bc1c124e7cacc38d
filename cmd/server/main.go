package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"garage-backend/internal/api/handlers"
	"garage-backend/internal/api/routes"
	"garage-backend/internal/config"
	"garage-backend/internal/metrics"
	"garage-backend/internal/repository"
	"garage-backend/internal/services"
	"garage-backend/internal/watch"
	"garage-backend/internal/websocket"
	"garage-backend/pkg/cache"
	"garage-backend/pkg/cleanup"
	"garage-backend/pkg/database"
	"garage-backend/pkg/jwt"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/ratelimit"
	"garage-backend/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.NewLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	db, err := database.Connect(context.Background(), cfg.MongoURI, cfg.MongoDatabase, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Disconnect(db.Client(), appLog)

	// Every repository publishes its writes here so live queries re-run.
	hub := watch.NewHub()
	userRepo := repository.NewUserRepository(db, hub)
	vehicleRepo := repository.NewVehicleRepository(db, hub)
	maintenanceRepo := repository.NewMaintenanceRepository(db, hub)

	if err := database.EnsureIndexes(context.Background(), appLog, userRepo, vehicleRepo, maintenanceRepo); err != nil {
		appLog.WithError(err).Warn("Continuing without all indexes")
	}

	redisClient := redis.NewClient(cfg.Redis, appLog)
	defer redisClient.Close()

	status := redisClient.HealthCheck(context.Background())
	if !status.IsConnected {
		appLog.WithField("error", status.Error).Warn("Redis unavailable, cache and rate limiting degraded until it reconnects")
	}

	m := metrics.New()
	cacheManager := cache.NewCacheManager(redisClient, cache.DefaultCacheConfig(), appLog)

	var revocations jwt.RevocationStore = jwt.NewRedisRevocationStore(redisClient.GetClient)
	if !status.IsConnected {
		revocations = jwt.NewMemoryRevocationStore()
	}

	authService := services.NewAuthService(userRepo, jwt.NewJWTUtil(cfg.JWTSecret, cfg.JWTExpiry), revocations, appLog)
	userService := services.NewUserService(userRepo, appLog)

	vehicleService := services.NewVehicleService(vehicleRepo, userRepo, appLog)
	vehicleService.SetCacheManager(cacheManager)
	vehicleService.SetMetrics(m)

	maintenanceService := services.NewMaintenanceService(maintenanceRepo, vehicleService, appLog)
	maintenanceService.SetCacheManager(cacheManager)
	maintenanceService.SetMetrics(m)

	liveService := services.NewLiveService(vehicleRepo, userRepo, vehicleService, maintenanceService, appLog)
	liveService.SetMetrics(m)

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limitConfig := ratelimit.DefaultConfig()
		switch cfg.RateLimit.Backend {
		case "memory":
			limiter = ratelimit.NewMemoryRateLimiter(limitConfig, appLog)
		default:
			limiter = ratelimit.NewRedisRateLimiter(redisClient.GetClient, limitConfig, appLog)
		}
		defer limiter.Close()
	}

	wsManager := websocket.NewManager(liveService, cfg.AllowedOrigins, appLog)
	if err := wsManager.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start WebSocket manager")
	}
	defer wsManager.Stop()

	audit := cleanup.NewOrphanAudit(vehicleRepo, maintenanceRepo, cfg.OrphanAuditInterval, appLog)
	audit.SetMetrics(m)
	go audit.Start()
	defer audit.Stop()

	health := handlers.NewHealthHandler(db.Client(), redisClient)
	health.SetCacheManager(cacheManager)
	health.SetWebSocketManager(wsManager)
	if limiter != nil {
		health.SetRateLimiter(limiter)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
	}

	// Credentials cannot be combined with a wildcard origin.
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		Auth:        authService,
		Users:       userService,
		Vehicles:    vehicleService,
		Maintenance: maintenanceService,
		WebSocket:   wsManager,
		Health:      health,
		RateLimiter: limiter,
		Metrics:     m,
		Log:         appLog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.WithError(err).Error("Forced shutdown")
	}
}
