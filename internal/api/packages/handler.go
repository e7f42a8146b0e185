// Package packages implements the npm-registry-shaped HTTP endpoints: package
// documents, publish and unpublish, dist-tags, maintainers, stars, dependency lookups,
// search, and the public listings.
//
// Reads are anonymous. Mutating routes run behind middleware.AuthMiddleware and take
// the acting user from middleware.Username; maintainer checks live in the services.
package packages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
	"github.com/npm-registry/npm-registry/internal/middleware"
	"github.com/npm-registry/npm-registry/internal/services"
)

// maxManifestBytes bounds a publish body.
const maxManifestBytes = 10 << 20

// ModuleReader reads published versions.
type ModuleReader interface {
	Get(ctx context.Context, name, version string) (*models.ModuleVersion, error)
	ListByName(ctx context.Context, name string) ([]*models.ModuleVersion, error)
}

// TagReader reads dist-tags.
type TagReader interface {
	ListByName(ctx context.Context, name string) ([]models.Tag, error)
	GetModule(ctx context.Context, name, tag string) (*models.ModuleVersion, error)
}

// DependencyReader reads the dependency index in both directions.
type DependencyReader interface {
	ListDependencies(ctx context.Context, name string) ([]string, error)
	ListDependents(ctx context.Context, dependency string) ([]string, error)
}

// StarStore reads and writes stars.
type StarStore interface {
	Add(ctx context.Context, name, user string) error
	Remove(ctx context.Context, name, user string) error
	ListStargazers(ctx context.Context, name string) ([]string, error)
	ListStarredNames(ctx context.Context, user string) ([]string, error)
}

// MaintainerManager reads and replaces maintainer lists.
type MaintainerManager interface {
	ListMaintainers(ctx context.Context, name string) ([]models.Maintainer, error)
	Authorize(ctx context.Context, name, username string) (*services.Authorization, error)
	SetMaintainers(ctx context.Context, name string, users []string) (added, removed []string, err error)
}

// Searcher runs package searches.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*services.SearchResult, error)
}

// Listings serves package name and summary listings.
type Listings interface {
	ListAllPublicModuleNames(ctx context.Context) ([]string, error)
	ListPublicModuleNamesSince(ctx context.Context, since time.Time) ([]string, error)
	ListPublicModulesByUser(ctx context.Context, user string) ([]models.ModuleSummary, error)
	ListPrivateModulesByScope(ctx context.Context, scope string) ([]models.ModuleSummary, error)
}

// Publisher publishes, unpublishes, and retags versions.
type Publisher interface {
	Publish(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error)
	Unpublish(ctx context.Context, name string, versions []string, username string) (*services.UnpublishResult, error)
	SetTag(ctx context.Context, name, tag, version, username string) (*models.TagResult, error)
	RemoveTag(ctx context.Context, name, tag, username string) error
}

// Deps bundles the stores and services a Handler serves from.
type Deps struct {
	Modules      ModuleReader
	Tags         TagReader
	Dependencies DependencyReader
	Stars        StarStore
	Maintainers  MaintainerManager
	Search       Searcher
	Listings     Listings
	Publish      Publisher
}

// Handler serves the package endpoints
type Handler struct {
	Deps
}

// NewHandler creates a new package handler
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// errorStatus maps service and store errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, services.ErrPackageNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidVersion), errors.Is(err, services.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrConstraintViolation), errors.Is(err, services.ErrVersionExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and hidden from clients.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", middleware.RequestID(c),
			"error", err)
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, reason string) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": reason})
}

func badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": reason})
}

// packageExists reports whether name has a "latest" dist-tag.
func (h *Handler) packageExists(ctx context.Context, name string) (bool, error) {
	mod, err := h.Tags.GetModule(ctx, name, models.LatestTag)
	return mod != nil, err
}
