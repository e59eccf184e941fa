package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, recorder Recorder, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check and metrics stay out of the access log
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(AccessLog(recorder))
	{
		v1.GET("/stats", handler.GetStats)
		v1.GET("/stats/timeline", handler.GetTimeline)

		repos := v1.Group("/repositories")
		{
			repos.GET("", handler.ListRepositories)
			repos.GET("/:id", handler.GetRepository)
			repos.GET("/:id/syncs", handler.ListSyncRecords)
			repos.POST("/:id/sync", handler.TriggerSync)
			repos.GET("/:id/catalog", handler.GetCatalog)
			repos.GET("/:id/catalog/:node_id", handler.GetCatalogContent)
			repos.GET("/:id/changelog", handler.ListChangelog)
		}
	}

	return router
}
