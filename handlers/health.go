package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lookbook/api/cache"
)

type statsReporter interface {
	Stats() cache.Stats
}

// HealthCheck reports liveness. When the aggregation cache is in-process its
// hit and miss counters are included.
func HealthCheck(aggCache cache.Cacher) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if sr, ok := aggCache.(statsReporter); ok {
			body["cache"] = sr.Stats()
		}
		c.JSON(http.StatusOK, body)
	}
}
