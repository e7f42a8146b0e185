// Package api wires the HTTP routes of the registry.
//
// Route layout follows the npm registry: package documents live at /:name and
// /:name/:version, registry-level endpoints under /-/. Scoped names are accepted
// URL-encoded (/@scope%2fname), so the engine matches on the raw path and unescapes
// parameters afterwards; reads also accept the unescaped /@scope/name[/:ref] form. Reads are anonymous; mutations require a bearer token.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/npm-registry/npm-registry/internal/api/packages"
	"github.com/npm-registry/npm-registry/internal/config"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
	"github.com/npm-registry/npm-registry/internal/middleware"
	"github.com/npm-registry/npm-registry/internal/services"
)

// Version is the server version reported by /-/version; set at build time.
var Version = "dev"

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter builds the repositories and services over db and returns the engine
func NewRouter(cfg *config.Config, db *sqlx.DB, tokens middleware.TokenValidator) *gin.Engine {
	keywordRepo := repositories.NewKeywordRepository(db)
	moduleRepo := repositories.NewModuleRepository(db, keywordRepo)
	if cfg.Registry.AsyncKeywordIndexing {
		moduleRepo.EnableAsyncKeywordIndexing(cfg.Database.QueryTimeout)
	}
	tagRepo := repositories.NewTagRepository(db, moduleRepo)
	dependencyRepo := repositories.NewDependencyRepository(db)
	starRepo := repositories.NewStarRepository(db)
	maintainerRepo := repositories.NewMaintainerRepository(db)
	npmMaintainerRepo := repositories.NewNpmMaintainerRepository(db)
	userRepo := repositories.NewUserRepository(db)

	maintainerService := services.NewMaintainerService(maintainerRepo, moduleRepo, userRepo)
	packageService := services.NewPackageService(services.PackageStores{
		Modules:        moduleRepo,
		Tags:           tagRepo,
		Dependencies:   dependencyRepo,
		Keywords:       keywordRepo,
		Stars:          starRepo,
		Maintainers:    maintainerRepo,
		NpmMaintainers: npmMaintainerRepo,
	})
	searchService := services.NewSearchService(tagRepo, keywordRepo, moduleRepo, services.SearchConfig{
		DefaultLimit:      cfg.Registry.SearchDefaultLimit,
		FallbackThreshold: cfg.Registry.SearchFallbackThreshold,
	})
	publishService := services.NewPublishService(moduleRepo, tagRepo, dependencyRepo, maintainerService, packageService)

	handler := packages.NewHandler(packages.Deps{
		Modules:      moduleRepo,
		Tags:         tagRepo,
		Dependencies: dependencyRepo,
		Stars:        starRepo,
		Maintainers:  maintainerService,
		Search:       searchService,
		Listings:     packageService,
		Publish:      publishService,
	})
	return newEngine(cfg, db, handler, tokens)
}

// newEngine registers middleware and routes
func newEngine(cfg *config.Config, db Pinger, h *packages.Handler, tokens middleware.TokenValidator) *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.UnescapePathValues = true

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "no such route"})
	})

	router.GET("/-/ping", pingHandler)
	router.GET("/-/health", healthCheckHandler(db))
	router.GET("/-/version", versionHandler)

	reads := router.Group("/", middleware.QueryTimeoutMiddleware(cfg.Database.QueryTimeout))
	{
		reads.GET("/-/v1/search", h.SearchPackages)
		reads.GET("/-/all/names", h.ListAllNames)
		reads.GET("/-/since", h.ListNamesSince)
		reads.GET("/-/by-user/:user", h.ListByUser)
		reads.GET("/-/_view/starredByUser", h.ListStarredByUser)
		reads.GET("/-/package/:name/dist-tags", h.ListDistTags)
		reads.GET("/-/package/:name/maintainers", h.ListMaintainers)
		reads.GET("/-/package/:name/stars", h.ListStargazers)
		reads.GET("/-/package/:name/dependents", h.ListDependents)
		reads.GET("/-/package/:name/dependencies", h.ListDependencies)
		reads.GET("/:name", h.GetPackage)
		reads.GET("/:name/:version", h.GetVersion)
		reads.GET("/:name/:version/:ref", h.GetVersion)
	}

	writes := reads.Group("/", middleware.AuthMiddleware(tokens))
	{
		writes.GET("/-/scope/:scope", h.ListScope)
		writes.PUT("/:name/:version", h.PublishVersion)
		writes.DELETE("/:name/-rev/:version", h.UnpublishVersion)
		writes.PUT("/-/package/:name/dist-tags/:tag", h.SetDistTag)
		writes.DELETE("/-/package/:name/dist-tags/:tag", h.RemoveDistTag)
		writes.PUT("/-/package/:name/maintainers", h.SetMaintainers)
		writes.PUT("/-/package/:name/star", h.Star)
		writes.DELETE("/-/package/:name/star", h.Unstar)
	}

	return router
}

// pingHandler answers `npm ping`
func pingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}
