package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.PendingCounter, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Everything under /api/v1 requires a device token.
	api := router.Group("/api/v1")
	api.Use(TokenAuthMiddleware(cfg.Authenticator))

	// Token check endpoint for clients validating their configuration.
	api.GET("/auth", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Progress endpoints
	progressController := NewProgressController(cfg.ProgressStore)
	api.GET("/progress", progressController.ListProgress)
	api.GET("/progress/:bookID", progressController.GetProgress)
	api.PUT("/progress/:bookID", progressController.PutProgress)

	// Device management endpoints
	if cfg.DeviceStore != nil {
		devicesController := NewDevicesController(cfg.DeviceStore)
		api.GET("/devices", devicesController.ListDevices)
		api.DELETE("/devices/:id", devicesController.DeleteDevice)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
