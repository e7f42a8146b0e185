package packages

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/middleware"
	"github.com/npm-registry/npm-registry/internal/services"
)

// PublishVersion stores a new version from the manifest in the request body. The
// dist-tag defaults to "latest" and can be chosen with ?tag=.
// Implements: PUT /:name/:version
func (h *Handler) PublishVersion(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxManifestBytes)
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}
	var manifest models.Manifest
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &manifest); err != nil {
			badRequest(c, "request body must be a JSON object")
			return
		}
	}

	result, err := h.Publish.Publish(c.Request.Context(), services.PublishRequest{
		Name:     c.Param("name"),
		Version:  c.Param("version"),
		Author:   middleware.Username(c),
		Tag:      c.Query("tag"),
		Manifest: manifest,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// UnpublishVersion removes one version
// Implements: DELETE /:name/-rev/:version
func (h *Handler) UnpublishVersion(c *gin.Context) {
	result, err := h.Publish.Unpublish(c.Request.Context(), c.Param("name"), []string{c.Param("version")}, middleware.Username(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListDistTags serves the tag → version map of a package
// Implements: GET /-/package/:name/dist-tags
func (h *Handler) ListDistTags(c *gin.Context) {
	tags, err := h.Tags.ListByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(tags) == 0 {
		notFound(c, "document not found")
		return
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Tag] = t.Version
	}
	c.JSON(http.StatusOK, out)
}

// SetDistTag points a tag at a version. The body is the version as a JSON string.
// Implements: PUT /-/package/:name/dist-tags/:tag
func (h *Handler) SetDistTag(c *gin.Context) {
	var version string
	if err := c.ShouldBindJSON(&version); err != nil || version == "" {
		badRequest(c, "request body must be a version string")
		return
	}
	result, err := h.Publish.SetTag(c.Request.Context(), c.Param("name"), c.Param("tag"), version, middleware.Username(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tag": c.Param("tag"), "version": version, "modified": result.GmtModified})
}

// RemoveDistTag deletes a tag other than "latest"
// Implements: DELETE /-/package/:name/dist-tags/:tag
func (h *Handler) RemoveDistTag(c *gin.Context) {
	if err := h.Publish.RemoveTag(c.Request.Context(), c.Param("name"), c.Param("tag"), middleware.Username(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
