package routes

import (
	"garage-backend/internal/api/handlers"
	"garage-backend/internal/api/middleware"
	"garage-backend/internal/metrics"
	"garage-backend/internal/models"
	"garage-backend/internal/services"
	"garage-backend/internal/websocket"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP surface is built on. The fields
// marked optional may be nil and drop the routes or middleware they back.
type Dependencies struct {
	Auth        *services.AuthService
	Users       *services.UserService
	Vehicles    *services.VehicleService
	Maintenance *services.MaintenanceService

	WebSocket   *websocket.Manager      // optional
	Health      *handlers.HealthHandler // optional
	RateLimiter ratelimit.RateLimiter   // optional
	Metrics     *metrics.Metrics        // optional
	Log         *logger.Logger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}

	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Users, log)
	directoryHandler := handlers.NewDirectoryHandler(deps.Users, log)
	vehicleHandler := handlers.NewVehicleHandler(deps.Vehicles, deps.Maintenance, log)
	maintenanceHandler := handlers.NewMaintenanceHandler(deps.Maintenance, log)

	limit := func() []gin.HandlerFunc { return nil }
	if deps.RateLimiter != nil {
		rl := middleware.RateLimitMiddleware(deps.RateLimiter, log)
		limit = func() []gin.HandlerFunc { return []gin.HandlerFunc{rl} }
	}

	api := router.Group("/api/v1")

	// Public routes are limited per client address.
	public := api.Group("", limit()...)
	{
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/logout", authHandler.Logout)
		public.GET("/catalog", directoryHandler.Catalog)
		public.POST("/maintenance/validate", maintenanceHandler.ValidateDraft)

		if deps.Health != nil {
			public.GET("/health", deps.Health.HealthCheck)
		}
		if deps.WebSocket != nil {
			ws := handlers.NewWebSocketHandler(deps.WebSocket, deps.Auth, log)
			public.GET("/ws", ws.HandleWebSocket)
		}
	}

	// Protected routes are limited per user, so the limiter runs after auth.
	protected := api.Group("", append([]gin.HandlerFunc{middleware.AuthMiddleware(deps.Auth)}, limit()...)...)
	{
		protected.POST("/auth/refresh", authHandler.Refresh)
		protected.GET("/auth/profile", authHandler.Profile)
		protected.PATCH("/auth/profile", authHandler.UpdateProfile)
		protected.GET("/mechanics", directoryHandler.ListMechanics)

		vehicles := protected.Group("/vehicles")
		{
			vehicles.GET("", vehicleHandler.GetVehicles)
			vehicles.POST("", middleware.RequireRole(models.RoleUser), vehicleHandler.CreateVehicle)
			vehicles.GET("/:id", vehicleHandler.GetVehicle)
			vehicles.PUT("/:id", vehicleHandler.UpdateVehicle)
			vehicles.DELETE("/:id", vehicleHandler.DeleteVehicle)

			vehicles.GET("/:id/maintenance", maintenanceHandler.GetHistory)
			vehicles.POST("/:id/maintenance", maintenanceHandler.CreateRecord)
			vehicles.GET("/:id/summary", maintenanceHandler.GetSummary)
		}

		if deps.WebSocket != nil {
			ws := handlers.NewWebSocketHandler(deps.WebSocket, deps.Auth, log)
			protected.GET("/ws/stats", ws.GetConnectedClients)
		}
	}
}
