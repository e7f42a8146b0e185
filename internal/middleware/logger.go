package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLevel picks the record level from the response status. Client errors stay at
// info since 404s for unknown packages are routine for npm clients.
func requestLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status == 401 || status == 403:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LoggerMiddleware writes one slog record per request once the handler chain returns.
// The record carries the matched route and, when present, the package coordinates.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", routeLabel(c)),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", c.Writer.Size()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", RequestID(c)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}
		if name := c.Param("name"); name != "" {
			attrs = append(attrs, slog.String("package", name))
		}
		if v := c.Param("version"); v != "" {
			attrs = append(attrs, slog.String("version", v))
		}
		if user := Username(c); user != "" {
			attrs = append(attrs, slog.String("user", user))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny).String(); errs != "" {
			attrs = append(attrs, slog.String("errors", errs))
		}
		slog.LogAttrs(c.Request.Context(), requestLevel(status), "request served", attrs...)
	}
}
