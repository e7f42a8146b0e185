// publish.go implements PublishService, which orchestrates a publish across the
// module store, dependency index, tag resolver, and maintainer lists, along with
// unpublish and dist-tag management.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
	"github.com/npm-registry/npm-registry/internal/telemetry"
	"github.com/npm-registry/npm-registry/internal/validation"
)

// VersionStore is the module store as used by publish and unpublish.
type VersionStore interface {
	Get(ctx context.Context, name, version string) (*models.ModuleVersion, error)
	Save(ctx context.Context, mod *models.ModuleVersion) (*models.SaveResult, error)
	ListByName(ctx context.Context, name string) ([]*models.ModuleVersion, error)
	RemoveByNameAndVersions(ctx context.Context, name string, versions []string) (int64, error)
}

// TagStore is the tag resolver as used by publish and unpublish.
type TagStore interface {
	Assign(ctx context.Context, name, tag, version string) (*models.TagResult, error)
	ListByName(ctx context.Context, name string) ([]models.Tag, error)
	RemoveByIDs(ctx context.Context, ids []int64) (int64, error)
	RemoveByNameAndTags(ctx context.Context, name string, tags []string) (int64, error)
}

// DependencyWriter records dependency edges.
type DependencyWriter interface {
	AddBatch(ctx context.Context, name string, dependencies []string) ([]*models.ModuleDependency, error)
}

// MaintainerAuthority authorizes mutations and seeds maintainer lists.
type MaintainerAuthority interface {
	Authorize(ctx context.Context, name, username string) (*Authorization, error)
	AddMaintainers(ctx context.Context, name string, users []string) ([]string, error)
}

// PackageRemover deletes a package from every collection.
type PackageRemover interface {
	RemovePackage(ctx context.Context, name string) error
}

// PublishRequest is one version being published.
type PublishRequest struct {
	Name     string
	Version  string
	Author   string
	Tag      string // defaults to "latest"
	Manifest models.Manifest
}

// PublishResult describes a stored version.
type PublishResult struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Tag         string    `json:"tag"`
	GmtModified time.Time `json:"gmt_modified"`
}

// UnpublishResult describes an unpublish.
type UnpublishResult struct {
	Removed int64 `json:"removed"`
	// Latest is the version "latest" points at afterwards, empty when the package is gone.
	Latest  string `json:"latest"`
	Deleted bool   `json:"deleted"`
}

// PublishService publishes and unpublishes versions
type PublishService struct {
	modules      VersionStore
	tags         TagStore
	dependencies DependencyWriter
	maintainers  MaintainerAuthority
	packages     PackageRemover
	now          func() time.Time
}

// NewPublishService creates a new publish service
func NewPublishService(modules VersionStore, tags TagStore, dependencies DependencyWriter, maintainers MaintainerAuthority, packages PackageRemover) *PublishService {
	return &PublishService{
		modules:      modules,
		tags:         tags,
		dependencies: dependencies,
		maintainers:  maintainers,
		packages:     packages,
		now:          time.Now,
	}
}

func (s *PublishService) authorize(ctx context.Context, name, username string) (*Authorization, error) {
	auth, err := s.maintainers.Authorize(ctx, name, username)
	if err != nil {
		return nil, err
	}
	if !auth.Allowed {
		if auth.UpstreamSynced {
			return nil, fmt.Errorf("%w: %s is synced from upstream and cannot be changed here", ErrForbidden, name)
		}
		return nil, fmt.Errorf("%w: %s is not a maintainer of %s", ErrForbidden, username, name)
	}
	return auth, nil
}

func publishOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidVersion), errors.Is(err, ErrInvalidName), errors.Is(err, ErrVersionExists):
		return "invalid"
	default:
		return "error"
	}
}

// Publish stores a new version, indexes its dependencies, points the requested
// dist-tag at it, and makes the author the first maintainer of an ownerless package.
func (s *PublishService) Publish(ctx context.Context, req PublishRequest) (result *PublishResult, err error) {
	defer func() {
		telemetry.PublishesTotal.WithLabelValues(publishOutcome(err)).Inc()
	}()

	if err := validation.ValidatePackageName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if err := validation.ValidateSemver(req.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	tag := req.Tag
	if tag == "" {
		tag = models.LatestTag
	}
	if err := validation.ValidateTagName(tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	auth, err := s.authorize(ctx, req.Name, req.Author)
	if err != nil {
		return nil, err
	}

	existing, err := s.modules.Get(ctx, req.Name, req.Version)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionExists, req.Name, req.Version)
	}

	pkg := req.Manifest.Clone()
	if pkg == nil {
		pkg = models.Manifest{}
	}
	pkg["name"] = req.Name
	pkg["version"] = req.Version
	pkg[models.PublishedLocallyKey] = true

	saved, err := s.modules.Save(ctx, &models.ModuleVersion{
		Name:        req.Name,
		Version:     req.Version,
		Author:      req.Author,
		Package:     pkg,
		PublishTime: s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	if deps := pkg.DependencyNames(); len(deps) > 0 {
		if _, err := s.dependencies.AddBatch(ctx, req.Name, deps); err != nil {
			return nil, fmt.Errorf("failed to index dependencies of %s@%s: %w", req.Name, req.Version, err)
		}
	}

	if _, err := s.tags.Assign(ctx, req.Name, tag, req.Version); err != nil {
		return nil, err
	}

	// The author becomes the first explicit maintainer only of a package nobody
	// maintains yet; seeding over a manifest list would lock its other names out.
	if len(auth.Maintainers) == 0 && req.Author != "" {
		if _, err := s.maintainers.AddMaintainers(ctx, req.Name, []string{req.Author}); err != nil {
			return nil, err
		}
	}

	slog.Info("package published", "name", req.Name, "version", req.Version, "tag", tag, "author", req.Author)
	return &PublishResult{
		ID:          saved.ID,
		Name:        req.Name,
		Version:     req.Version,
		Tag:         tag,
		GmtModified: saved.GmtModified,
	}, nil
}

// Unpublish removes versions of name together with the tags pointing at them. When
// "latest" is removed it moves to the highest remaining version; when no versions
// remain the whole package is removed.
func (s *PublishService) Unpublish(ctx context.Context, name string, versions []string, username string) (*UnpublishResult, error) {
	if len(versions) == 0 {
		return &UnpublishResult{}, nil
	}
	if _, err := s.authorize(ctx, name, username); err != nil {
		return nil, err
	}

	removed, err := s.modules.RemoveByNameAndVersions(ctx, name, versions)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, fmt.Errorf("%w: %s has none of the given versions", ErrPackageNotFound, name)
	}

	remaining, err := s.modules.ListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		if err := s.packages.RemovePackage(ctx, name); err != nil {
			return nil, err
		}
		slog.Info("package removed", "name", name, "user", username)
		return &UnpublishResult{Removed: removed, Deleted: true}, nil
	}

	gone := make(map[string]bool, len(versions))
	for _, v := range versions {
		gone[v] = true
	}
	tags, err := s.tags.ListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	var staleIDs []int64
	latest := ""
	for _, t := range tags {
		switch {
		case gone[t.Version]:
			staleIDs = append(staleIDs, t.ID)
		case t.Tag == models.LatestTag:
			latest = t.Version
		}
	}
	if _, err := s.tags.RemoveByIDs(ctx, staleIDs); err != nil {
		return nil, err
	}

	if latest == "" {
		names := make([]string, 0, len(remaining))
		for _, m := range remaining {
			names = append(names, m.Version)
		}
		latest = validation.HighestVersion(names)
		if latest == "" {
			latest = remaining[0].Version
		}
		if _, err := s.tags.Assign(ctx, name, models.LatestTag, latest); err != nil {
			return nil, err
		}
	}

	slog.Info("versions unpublished", "name", name, "versions", versions, "user", username, "latest", latest)
	return &UnpublishResult{Removed: removed, Latest: latest}, nil
}

// SetTag points tag at an existing version on behalf of username
func (s *PublishService) SetTag(ctx context.Context, name, tag, version, username string) (*models.TagResult, error) {
	if err := validation.ValidateTagName(tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if _, err := s.authorize(ctx, name, username); err != nil {
		return nil, err
	}
	return s.tags.Assign(ctx, name, tag, version)
}

// RemoveTag deletes a dist-tag. "latest" cannot be removed.
func (s *PublishService) RemoveTag(ctx context.Context, name, tag, username string) error {
	if tag == models.LatestTag {
		return fmt.Errorf("%w: the %q tag cannot be removed", repositories.ErrConstraintViolation, models.LatestTag)
	}
	if _, err := s.authorize(ctx, name, username); err != nil {
		return err
	}
	n, err := s.tags.RemoveByNameAndTags(ctx, name, []string{tag})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tag %s of %s: %w", tag, name, repositories.ErrNotFound)
	}
	return nil
}
