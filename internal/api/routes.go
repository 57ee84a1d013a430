package api

import (
	"histomicsui/hui-server/internal/ingest"
	"histomicsui/hui-server/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRoutes(
	router *gin.Engine,
	log *zap.Logger,
	authService service.AuthService,
	settingsService service.SettingsService,
	dispatcher *ingest.Dispatcher,
) {
	authHandler := NewAuthHandler(authService)
	settingsHandler := NewSettingsHandler(settingsService)
	ingestHandler := NewIngestHandler(log, dispatcher)

	authMiddleware := AuthMiddleware(authService)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/user/authentication", authHandler.Login)
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/user/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "admin": c.GetBool(ContextAdminKey)})
		})

		huiGroup := protected.Group("/hui")
		{
			// POST /api/v1/hui/upload-events
			huiGroup.POST("/upload-events", ingestHandler.UploadCompleted)

			// GET /api/v1/hui/settings/{key}
			huiGroup.GET("/settings/:key", settingsHandler.GetSetting)
			// PUT /api/v1/hui/settings/{key}
			huiGroup.PUT("/settings/:key", AdminMiddleware(), settingsHandler.PutSetting)

			// GET /api/v1/hui/pending/{uuid}
			huiGroup.GET("/pending/:uuid", AdminMiddleware(), ingestHandler.GetPending)
		}
	}
}
