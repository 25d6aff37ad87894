package api

import (
	"net/http"

	authdomain "pulse-backend/internal/auth/domain"
	"pulse-backend/internal/auth/delivery"
	authUsecase "pulse-backend/internal/auth/usecase"
	connectionDelivery "pulse-backend/internal/connection/delivery"
	contentDelivery "pulse-backend/internal/content/delivery"
	ingestDelivery "pulse-backend/internal/ingest/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUsecase authUsecase.AuthUsecase,
	userHandler *delivery.UserHandler,
	connectionHandler *connectionDelivery.ConnectionHandler,
	contentHandler *contentDelivery.ContentHandler,
	syncHandler *ingestDelivery.SyncHandler,
) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Consumer reads
		consumer := api.Group("")
		consumer.Use(delivery.AuthMiddleware(authUsecase), delivery.RequireScope(authdomain.ScopeRead))
		{
			consumer.GET("/content", contentHandler.Query)
			consumer.POST("/content/:id/retain", contentHandler.Retain)
			consumer.GET("/freshness", contentHandler.Freshness)
		}

		// Operator routes
		admin := api.Group("")
		admin.Use(delivery.AuthMiddleware(authUsecase), delivery.RequireScope(authdomain.ScopeAdmin))
		{
			sync := admin.Group("/sync")
			{
				sync.POST("/trigger", syncHandler.Trigger)
				sync.GET("/registry", syncHandler.Registry)
				sync.GET("/activity", syncHandler.Activity)
			}

			connections := admin.Group("/connections")
			{
				connections.GET("", connectionHandler.List)
				connections.POST("", connectionHandler.Connect)
				connections.PATCH("/:id/resources", connectionHandler.UpdateResources)
				connections.DELETE("/:id", connectionHandler.Disconnect)
			}

			users := admin.Group("/users")
			{
				users.PUT("/:id/tier", userHandler.SetTier)
				users.POST("/:id/devices", userHandler.RegisterDevice)
			}
		}
	}
}
