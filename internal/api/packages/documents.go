package packages

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/validation"
	"golang.org/x/sync/errgroup"
)

// packageDocument is the full metadata document of one package.
type packageDocument struct {
	ID          string                     `json:"_id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	DistTags    map[string]string          `json:"dist-tags"`
	Versions    map[string]models.Manifest `json:"versions"`
	Time        map[string]string          `json:"time"`
	Maintainers []models.Maintainer        `json:"maintainers"`
	Readme      string                     `json:"readme,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// buildPackageDocument assembles the document from every stored version. Versions
// whose manifest could not be decoded are left out.
func buildPackageDocument(name string, versions []*models.ModuleVersion, tags []models.Tag, maintainers []models.Maintainer) *packageDocument {
	doc := &packageDocument{
		ID:          name,
		Name:        name,
		DistTags:    make(map[string]string, len(tags)),
		Versions:    make(map[string]models.Manifest, len(versions)),
		Time:        make(map[string]string, len(versions)+2),
		Maintainers: maintainers,
	}
	if doc.Maintainers == nil {
		doc.Maintainers = []models.Maintainer{}
	}
	for _, t := range tags {
		doc.DistTags[t.Tag] = t.Version
	}

	var created, modified time.Time
	var newest *models.ModuleVersion
	for _, v := range versions {
		if created.IsZero() || v.GmtCreate.Before(created) {
			created = v.GmtCreate
		}
		if v.GmtModified.After(modified) {
			modified = v.GmtModified
		}
		if v.Package == nil {
			slog.Warn("skipping version with unreadable manifest", "name", name, "version", v.Version)
			continue
		}
		doc.Versions[v.Version] = v.Package
		published := v.GmtCreate
		if v.PublishTime > 0 {
			published = time.UnixMilli(v.PublishTime)
		}
		doc.Time[v.Version] = formatTime(published)
		if newest == nil || v.ID > newest.ID {
			newest = v
		}
	}
	if !created.IsZero() {
		doc.Time["created"] = formatTime(created)
		doc.Time["modified"] = formatTime(modified)
	}

	source := newest
	if latest, ok := doc.DistTags[models.LatestTag]; ok {
		if pkg, ok := doc.Versions[latest]; ok {
			doc.Description, doc.Readme = pkg.Description(), pkg.Readme()
			source = nil
		}
	}
	if source != nil {
		doc.Description, doc.Readme = source.Package.Description(), source.Package.Readme()
	}
	return doc
}

// GetPackage serves the full document of a package
// Implements: GET /:name
func (h *Handler) GetPackage(c *gin.Context) {
	h.writePackage(c, c.Param("name"))
}

func (h *Handler) writePackage(c *gin.Context, name string) {
	var (
		versions    []*models.ModuleVersion
		tags        []models.Tag
		maintainers []models.Maintainer
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		versions, err = h.Modules.ListByName(ctx, name)
		return err
	})
	g.Go(func() (err error) {
		tags, err = h.Tags.ListByName(ctx, name)
		return err
	})
	g.Go(func() (err error) {
		maintainers, err = h.Maintainers.ListMaintainers(ctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}
	if len(versions) == 0 {
		notFound(c, "document not found")
		return
	}
	c.JSON(http.StatusOK, buildPackageDocument(name, versions, tags, maintainers))
}

// GetVersion serves the manifest of one version, addressed by exact version or by
// dist-tag. An unescaped scoped name is accepted too: /@scope/name is served as a
// package document and /@scope/name/:ref as one of its versions.
// Implements: GET /:name/:version, GET /:name/:version/:ref
func (h *Handler) GetVersion(c *gin.Context) {
	name, ref := c.Param("name"), c.Param("version")
	switch {
	case models.IsScopedName(name) && !strings.Contains(name, "/"):
		name += "/" + ref
		if ref = c.Param("ref"); ref == "" {
			h.writePackage(c, name)
			return
		}
	case c.Param("ref") != "":
		notFound(c, "document not found")
		return
	}

	ctx := c.Request.Context()
	var (
		mod *models.ModuleVersion
		err error
	)
	if validation.ValidateSemver(ref) == nil {
		mod, err = h.Modules.Get(ctx, name, ref)
	} else {
		mod, err = h.Tags.GetModule(ctx, name, ref)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if mod == nil {
		notFound(c, "version not found: "+ref)
		return
	}
	if mod.Package == nil {
		slog.Error("stored manifest is unreadable", "name", name, "version", mod.Version, "id", mod.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "manifest unreadable"})
		return
	}
	c.JSON(http.StatusOK, mod.Package)
}

