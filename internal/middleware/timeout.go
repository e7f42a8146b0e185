package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// QueryTimeoutMiddleware bounds the request context so every store call made by the
// handler shares one deadline. A non-positive timeout disables it.
func QueryTimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
