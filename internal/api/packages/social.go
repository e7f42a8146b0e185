package packages

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/middleware"
	"github.com/npm-registry/npm-registry/internal/services"
)

// ListMaintainers serves the effective maintainers of a package
// Implements: GET /-/package/:name/maintainers
func (h *Handler) ListMaintainers(c *gin.Context) {
	maintainers, err := h.Maintainers.ListMaintainers(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"maintainers": maintainers})
}

// setMaintainersRequest is the body of a maintainer-list replacement
type setMaintainersRequest struct {
	Maintainers []string `json:"maintainers" binding:"required"`
}

// SetMaintainers replaces the explicit maintainer list of a package. Only a current
// maintainer may do so, and the list may not become empty.
// Implements: PUT /-/package/:name/maintainers
func (h *Handler) SetMaintainers(c *gin.Context) {
	var req setMaintainersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be {\"maintainers\": [...]}")
		return
	}
	users := make([]string, 0, len(req.Maintainers))
	for _, u := range req.Maintainers {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		badRequest(c, "a package needs at least one maintainer")
		return
	}

	ctx := c.Request.Context()
	name, username := c.Param("name"), middleware.Username(c)
	exists, err := h.packageExists(ctx, name)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		notFound(c, "document not found")
		return
	}
	auth, err := h.Maintainers.Authorize(ctx, name, username)
	if err != nil {
		respondError(c, err)
		return
	}
	if !auth.Allowed {
		respondError(c, services.ErrForbidden)
		return
	}

	added, removed, err := h.Maintainers.SetMaintainers(ctx, name, users)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "added": added, "removed": removed})
}

// ListStargazers serves the users who starred a package
// Implements: GET /-/package/:name/stars
func (h *Handler) ListStargazers(c *gin.Context) {
	users, err := h.Stars.ListStargazers(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Star records that the current user starred a package
// Implements: PUT /-/package/:name/star
func (h *Handler) Star(c *gin.Context) {
	h.changeStar(c, h.Stars.Add)
}

// Unstar removes the current user's star
// Implements: DELETE /-/package/:name/star
func (h *Handler) Unstar(c *gin.Context) {
	h.changeStar(c, h.Stars.Remove)
}

func (h *Handler) changeStar(c *gin.Context, op func(ctx context.Context, name, user string) error) {
	ctx := c.Request.Context()
	name := c.Param("name")
	exists, err := h.packageExists(ctx, name)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		notFound(c, "document not found")
		return
	}
	if err := op(ctx, name, middleware.Username(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// starredRow is one row of the starredByUser view.
type starredRow struct {
	Value string `json:"value"`
}

// ListStarredByUser serves the packages a user starred. The user is given as
// ?key=, optionally JSON-quoted as the npm client sends it.
// Implements: GET /-/_view/starredByUser
func (h *Handler) ListStarredByUser(c *gin.Context) {
	user := strings.Trim(c.Query("key"), `"`)
	if user == "" {
		badRequest(c, "key is required")
		return
	}
	names, err := h.Stars.ListStarredNames(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	rows := make([]starredRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, starredRow{Value: n})
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// ListDependents serves the packages that depend on a package
// Implements: GET /-/package/:name/dependents
func (h *Handler) ListDependents(c *gin.Context) {
	names, err := h.Dependencies.ListDependents(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"dependents": names})
}

// ListDependencies serves the recorded dependencies of a package
// Implements: GET /-/package/:name/dependencies
func (h *Handler) ListDependencies(c *gin.Context) {
	names, err := h.Dependencies.ListDependencies(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"dependencies": names})
}
