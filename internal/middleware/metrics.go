package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/service"
)

// Metrics times every request and feeds the prometheus histograms. The route
// template is used when gin resolved one so /retiros/:id stays one series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
