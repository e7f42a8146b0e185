// Package middleware provides the Gin middleware of the registry HTTP boundary.
//
// Ordering is fixed in api.NewRouter:
//
//	Recovery → RequestID → Metrics → Logger → SecurityHeaders → CORS → (route) Auth
//
// Reads are anonymous. Mutating routes are wrapped with AuthMiddleware, which puts the
// username carried by the bearer token into the context; maintainer checks happen in
// the services, not here.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/auth"
)

// UsernameKey is the gin.Context key holding the authenticated username.
const UsernameKey = "username"

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

// AuthMiddleware rejects requests without a valid bearer token and stores the token's
// username under UsernameKey.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// OptionalAuthMiddleware sets UsernameKey when a valid token is present and otherwise
// lets the request through anonymously.
func OptionalAuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, problem := bearerToken(c); problem == "" {
			if claims, err := tokens.Validate(token); err == nil {
				c.Set(UsernameKey, claims.Username)
			}
		}
		c.Next()
	}
}

// Username returns the authenticated username, or "" for anonymous requests.
func Username(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
