package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware records HTTP request counts and latency per route, the
// saga-wide equivalent of the teacher's internal/api/middleware/metrics.go.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestDurationSeconds.WithLabelValues(serviceName, route, c.Request.Method).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(serviceName, route, c.Request.Method, status).Inc()
	}
}
