package routes

import (
	"delivery-backend/internal/handlers"
	"delivery-backend/internal/middleware"
	"delivery-backend/internal/models"
	"delivery-backend/internal/services"
	"delivery-backend/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRoutes(api *gin.RouterGroup, db *gorm.DB, allocator *services.AllocationService, manifests *services.ManifestService, notifier *services.NotificationService) {
	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth())
	{
		// Справочник маршрутов
		protected.GET("/routes", handlers.GetRoutes(db))
		protected.POST("/routes", middleware.RequireRole(models.RoleAdmin), handlers.CreateRoute(db))
		protected.DELETE("/routes/:id", middleware.RequireRole(models.RoleAdmin), handlers.DeleteRoute(db))

		// Профили водителей по маршрутам
		profiles := protected.Group("/profiles")
		profiles.Use(middleware.RequireRole(models.RoleDriver))
		{
			profiles.POST("", handlers.CreateProfile(db))
			profiles.GET("", handlers.GetMyProfiles(db))
			profiles.PUT("/:id", handlers.UpdateProfile(db))
			profiles.DELETE("/:id", handlers.DeactivateProfile(db))
		}

		// Заказы
		protected.POST("/orders", middleware.RequireRole(models.RoleCompany), handlers.CreateOrder(db))
		protected.GET("/orders", middleware.RequireRole(models.RoleCompany), handlers.GetMyOrders(db))
		protected.GET("/orders/pending", middleware.RequireRole(models.RoleDriver), handlers.GetPendingOrders(db))
		protected.GET("/orders/:id", handlers.GetOrder(db))
		protected.POST("/orders/:id/accept", middleware.RequireRole(models.RoleDriver), handlers.AcceptOrder(db, allocator, manifests, notifier))
		protected.POST("/orders/:id/cancel", handlers.CancelOrder(db, allocator, manifests, notifier))

		// Плечи
		protected.POST("/legs/:id/advance", middleware.RequireRole(models.RoleDriver), handlers.AdvanceLeg(db, allocator, manifests))

		// Рейсы
		protected.GET("/trips", middleware.RequireRole(models.RoleDriver), handlers.GetMyTrips(db))
		protected.GET("/trips/:id/manifest", handlers.GetTripManifest(db, manifests))
		protected.GET("/trips/:id/next", handlers.GetNextAction(db, manifests))
		protected.PUT("/trips/:id/start", middleware.RequireRole(models.RoleDriver), handlers.StartTrip(db))
		protected.PUT("/trips/:id/complete", middleware.RequireRole(models.RoleDriver), handlers.CompleteTrip(db, manifests))

		// WebSocket подключение для получения обновлений в реальном времени
		protected.GET("/ws", websocket.Handler(db))
	}
}
