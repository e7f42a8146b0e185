package packages

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxSearchSize caps ?size= on searches.
const maxSearchSize = 250

// SearchPackages searches names and keywords. ?size= limits each channel.
// Implements: GET /-/v1/search
func (h *Handler) SearchPackages(c *gin.Context) {
	size := 0
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "size must be a non-negative integer")
			return
		}
		size = min(n, maxSearchSize)
	}
	result, err := h.Search.Search(c.Request.Context(), c.Query("text"), size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAllNames serves every public package name
// Implements: GET /-/all/names
func (h *Handler) ListAllNames(c *gin.Context) {
	names, err := h.Listings.ListAllPublicModuleNames(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(names))
}

// ListNamesSince serves public package names whose dist-tags changed after
// ?startkey=, a unix timestamp in milliseconds.
// Implements: GET /-/since
func (h *Handler) ListNamesSince(c *gin.Context) {
	millis, err := strconv.ParseInt(c.Query("startkey"), 10, 64)
	if err != nil || millis < 0 {
		badRequest(c, "startkey must be a unix timestamp in milliseconds")
		return
	}
	names, err := h.Listings.ListPublicModuleNamesSince(c.Request.Context(), time.UnixMilli(millis))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(names))
}

// ListByUser serves summaries of the public packages a user authored or maintains
// Implements: GET /-/by-user/:user
func (h *Handler) ListByUser(c *gin.Context) {
	summaries, err := h.Listings.ListPublicModulesByUser(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": summaries})
}

// ListScope serves summaries of the packages published under a scope. The route only
// requires a valid token: scopes carry no membership, so any authenticated user may
// list any scope. "Private" here means hosted locally rather than access-controlled.
// Implements: GET /-/scope/:scope
func (h *Handler) ListScope(c *gin.Context) {
	summaries, err := h.Listings.ListPrivateModulesByScope(c.Request.Context(), c.Param("scope"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": summaries})
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
