package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/awap/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(regions *usecase.RegionService, analysis *usecase.AnalysisUseCase) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	handler := NewHandler(regions, analysis)

	v1 := router.Group("/v1")
	// Region geometry.
	r := v1.Group("/regions")
	r.GET("", handler.GetRegion)
	r.GET("/:id", handler.GetSubRegion)
	r.GET("/:id/mask", handler.GetSubRegionMask)
	r.GET("/:id/timeseries", handler.GetTimeseries)

	// Density analysis of posted samples.
	v1.POST("/divergence", handler.PostDivergence)

	// Results persisted by the CLI and batch jobs.
	res := v1.Group("/results")
	res.GET("/series", handler.GetStoredSeries)
	res.GET("/divergence", handler.GetStoredDivergences)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}
