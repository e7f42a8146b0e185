// packages.go implements PackageService: the public package listings served to
// clients and full package removal across every collection.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"golang.org/x/sync/errgroup"
)

// TagLister enumerates packages through their dist-tags.
type TagLister interface {
	ListAllPublicNames(ctx context.Context) ([]string, error)
	ListPublicNamesSince(ctx context.Context, since time.Time) ([]string, error)
	ListLatestByNames(ctx context.Context, names []string) ([]models.Tag, error)
	ListLatestByNamePrefix(ctx context.Context, prefix string) ([]models.Tag, error)
}

// AuthoredNameLister lists the public packages a user has published.
type AuthoredNameLister interface {
	ListPublicNamesByAuthor(ctx context.Context, user string) ([]string, error)
	SummaryReader
}

// MaintainedNameLister lists the packages a user maintains.
type MaintainedNameLister interface {
	ListByUser(ctx context.Context, user string) ([]string, error)
}

// NameRemover deletes every row of one collection belonging to a package.
type NameRemover interface {
	RemoveByName(ctx context.Context, name string) (int64, error)
}

// MaintainerClearer empties a package's maintainer list.
type MaintainerClearer interface {
	RemoveAll(ctx context.Context, name string) ([]string, error)
}

// PackageStores bundles what PackageService reads and deletes from.
type PackageStores struct {
	Modules interface {
		AuthoredNameLister
		NameRemover
	}
	Tags interface {
		TagLister
		NameRemover
	}
	Dependencies   NameRemover
	Keywords       NameRemover
	Stars          NameRemover
	Maintainers    MaintainerClearer
	NpmMaintainers interface {
		MaintainedNameLister
		MaintainerClearer
	}
}

// PackageService serves package listings and removal
type PackageService struct {
	stores PackageStores
}

// NewPackageService creates a new package service
func NewPackageService(stores PackageStores) *PackageService {
	return &PackageService{stores: stores}
}

// ListAllPublicModuleNames returns every non-scoped package name with a dist-tag
func (s *PackageService) ListAllPublicModuleNames(ctx context.Context) ([]string, error) {
	return s.stores.Tags.ListAllPublicNames(ctx)
}

// ListPublicModuleNamesSince returns non-scoped packages whose tags changed after since
func (s *PackageService) ListPublicModuleNamesSince(ctx context.Context, since time.Time) ([]string, error) {
	return s.stores.Tags.ListPublicNamesSince(ctx, since)
}

// ListPublicModuleNamesByUser returns the sorted union of the non-scoped packages
// user published here and the upstream packages user maintains.
func (s *PackageService) ListPublicModuleNamesByUser(ctx context.Context, user string) ([]string, error) {
	var authored, maintained []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		authored, err = s.stores.Modules.ListPublicNamesByAuthor(gctx, user)
		return err
	})
	g.Go(func() error {
		var err error
		maintained, err = s.stores.NpmMaintainers.ListByUser(gctx, user)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list packages of %s: %w", user, err)
	}

	set := make(map[string]struct{}, len(authored)+len(maintained))
	for _, list := range [][]string{authored, maintained} {
		for _, name := range list {
			if !models.IsScopedName(name) {
				set[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListPublicModulesByUser returns name/description summaries of the latest version of
// every package ListPublicModuleNamesByUser reports.
func (s *PackageService) ListPublicModulesByUser(ctx context.Context, user string) ([]models.ModuleSummary, error) {
	names, err := s.ListPublicModuleNamesByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []models.ModuleSummary{}, nil
	}
	tags, err := s.stores.Tags.ListLatestByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, tags)
}

// ListPrivateModulesByScope returns summaries of the latest version of every package
// in scope. The scope may be given with or without its leading "@".
func (s *PackageService) ListPrivateModulesByScope(ctx context.Context, scope string) ([]models.ModuleSummary, error) {
	scope = strings.TrimPrefix(strings.TrimSuffix(scope, "/"), "@")
	if scope == "" {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidName)
	}
	tags, err := s.stores.Tags.ListLatestByNamePrefix(ctx, "@"+scope+"/")
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, tags)
}

func (s *PackageService) summarize(ctx context.Context, tags []models.Tag) ([]models.ModuleSummary, error) {
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ModuleID)
	}
	summaries, err := s.stores.Modules.ListSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []models.ModuleSummary{}
	}
	return summaries, nil
}

// RemovePackage deletes a package's versions, tags, outgoing dependency edges,
// keywords, stars, and both maintainer lists. Edges from other packages that point
// at it are kept as history.
func (s *PackageService) RemovePackage(ctx context.Context, name string) error {
	removers := map[string]NameRemover{
		"versions":     s.stores.Modules,
		"tags":         s.stores.Tags,
		"dependencies": s.stores.Dependencies,
		"keywords":     s.stores.Keywords,
		"stars":        s.stores.Stars,
	}

	g, gctx := errgroup.WithContext(ctx)
	for what, r := range removers {
		g.Go(func() error {
			if _, err := r.RemoveByName(gctx, name); err != nil {
				return fmt.Errorf("%s: %w", what, err)
			}
			return nil
		})
	}
	for _, m := range []MaintainerClearer{s.stores.Maintainers, s.stores.NpmMaintainers} {
		g.Go(func() error {
			_, err := m.RemoveAll(gctx, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to remove package %s: %w", name, err)
	}
	return nil
}
