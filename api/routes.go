package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.MaxMultipartMemory = h.maxUpload

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/upload", h.Upload)
		api.POST("/recompute", h.Recompute)
		api.GET("/summary", h.GetSummary)
		api.GET("/diagnostics", h.GetDiagnostics)

		stats := api.Group("/stats")
		stats.GET("/daily", h.GetDailyStats)
		stats.GET("/daily/stored", h.GetStoredDaily)
		stats.GET("/monthly", h.GetMonthlyStats)
		stats.GET("/pairs", h.GetPairStats)

		exports := api.Group("/export")
		exports.GET("/daily.csv", h.ExportDailyCSV)
		exports.GET("/pairs.csv", h.ExportPairsCSV)
	}

	return r
}
