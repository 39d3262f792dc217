package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// unmatchedRoute labels requests that hit no route so raw URLs never become label values
const unmatchedRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds keyed by
// the matched route template. Register it after Recovery and RequestID.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
