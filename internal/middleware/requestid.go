package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the identifier.
	RequestIDKey = "request_id"

	maxRequestIDLength = 128
)

// usableRequestID reports whether an inbound id may be reused: non-empty, bounded,
// and printable ASCII without spaces so it cannot forge log lines.
func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// RequestIDMiddleware tags every request with an identifier, reusing an inbound
// X-Request-ID from a proxy when usable and generating a UUID v4 otherwise.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !usableRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestID returns the identifier assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
