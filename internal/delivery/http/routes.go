package http

import (
	"github.com/gin-gonic/gin"

	"github.com/pricewatch/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/limiter/stats", handler.LimiterStats)

		cache := v1.Group("/cache")
		{
			cache.GET("/:store/stats", handler.CacheStats)
			cache.POST("/purge", handler.CachePurge)
		}

		match := v1.Group("/match")
		{
			match.POST("/score", handler.ScoreMatch)
		}
	}

	return router
}
