package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/telemetry"
)

// noRoute labels requests that matched no route.
const noRoute = "<no-route>"

// routeLabel is the matched route template (/:name/:version), so package names never
// become label values.
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return noRoute
}

// MetricsMiddleware records http_requests_total{method,path,status} and
// http_request_duration_seconds{method,path}.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
