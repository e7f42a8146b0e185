// maintainers.go implements MaintainerService, which decides who may mutate a package.
// The effective maintainer set is the package's explicit maintainer list or, when that
// is empty, the maintainers embedded in its latest manifest.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// MaintainerStore is an explicit maintainer-list store.
type MaintainerStore interface {
	ListByName(ctx context.Context, name string) ([]string, error)
	Add(ctx context.Context, name string, users []string) ([]string, error)
	Update(ctx context.Context, name string, users []string) (added, removed []string, err error)
	RemoveAll(ctx context.Context, name string) ([]string, error)
}

// LatestModuleReader reads the latest version of a package and bumps its
// last-modified time.
type LatestModuleReader interface {
	GetLatestByName(ctx context.Context, name string) (*models.ModuleVersion, error)
	TouchLastModified(ctx context.Context, name string) (*time.Time, error)
}

// UserDirectory resolves user names to their display form.
type UserDirectory interface {
	ListByNames(ctx context.Context, names []string) ([]models.User, error)
}

// Authorization is the outcome of a maintainer check.
type Authorization struct {
	Allowed bool
	// Maintainers is the effective maintainer list the decision was made against.
	Maintainers []string
	// Explicit is true when Maintainers came from the maintainer-list store rather
	// than the latest manifest.
	Explicit bool
	// UpstreamSynced is true when the latest version was not published locally; such
	// packages are never mutable here.
	UpstreamSynced bool
}

// MaintainerService computes effective maintainers and authorizes mutations
type MaintainerService struct {
	store   MaintainerStore
	modules LatestModuleReader
	users   UserDirectory
}

// NewMaintainerService creates a new maintainer service
func NewMaintainerService(store MaintainerStore, modules LatestModuleReader, users UserDirectory) *MaintainerService {
	return &MaintainerService{store: store, modules: modules, users: users}
}

func embeddedMaintainers(latest *models.ModuleVersion) []string {
	if latest == nil || latest.Package == nil {
		return []string{}
	}
	return models.MaintainerNames(latest.Package.Maintainers())
}

// EffectiveMaintainers returns the explicit maintainer list of name, falling back to
// the maintainers embedded in the latest manifest. An empty result means the package
// is open to any user.
func (s *MaintainerService) EffectiveMaintainers(ctx context.Context, name string) ([]string, error) {
	explicit, err := s.store.ListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(explicit) > 0 {
		return explicit, nil
	}
	latest, err := s.modules.GetLatestByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return embeddedMaintainers(latest), nil
}

// Authorize decides whether username may mutate name. Packages synced from upstream
// are always denied; packages without maintainers are open; otherwise username must
// be a maintainer.
func (s *MaintainerService) Authorize(ctx context.Context, name, username string) (*Authorization, error) {
	var (
		explicit []string
		latest   *models.ModuleVersion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		explicit, err = s.store.ListByName(gctx, name)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.modules.GetLatestByName(gctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to authorize %s: %w", name, err)
	}

	auth := &Authorization{Maintainers: explicit, Explicit: len(explicit) > 0}
	if !auth.Explicit {
		auth.Maintainers = embeddedMaintainers(latest)
	}

	switch {
	case latest != nil && !latest.Package.PublishedLocally():
		auth.UpstreamSynced = true
	case len(auth.Maintainers) == 0:
		auth.Allowed = true
	default:
		auth.Allowed = slices.Contains(auth.Maintainers, username)
	}

	decision := "deny"
	if auth.Allowed {
		decision = "grant"
	}
	telemetry.AuthorizationsTotal.WithLabelValues(decision).Inc()
	if !auth.Allowed {
		slog.Debug("maintainer authorization denied",
			"package", name, "user", username, "upstream_synced", auth.UpstreamSynced)
	}
	return auth, nil
}

// IsMaintainer reports whether username may mutate name
func (s *MaintainerService) IsMaintainer(ctx context.Context, name, username string) (bool, error) {
	auth, err := s.Authorize(ctx, name, username)
	if err != nil {
		return false, err
	}
	return auth.Allowed, nil
}

// ListMaintainerNames returns the effective maintainer names of a package
func (s *MaintainerService) ListMaintainerNames(ctx context.Context, name string) ([]string, error) {
	return s.EffectiveMaintainers(ctx, name)
}

// ListMaintainers returns the effective maintainers as {name, email}. Explicit
// maintainers are resolved through the user directory; embedded ones are taken from
// the manifest as written.
func (s *MaintainerService) ListMaintainers(ctx context.Context, name string) ([]models.Maintainer, error) {
	explicit, err := s.store.ListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(explicit) == 0 {
		latest, err := s.modules.GetLatestByName(ctx, name)
		if err != nil {
			return nil, err
		}
		var embedded []models.Maintainer
		if latest != nil {
			embedded = latest.Package.Maintainers()
		}
		if embedded == nil {
			embedded = []models.Maintainer{}
		}
		return embedded, nil
	}

	users, err := s.users.ListByNames(ctx, explicit)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.User, len(users))
	for _, u := range users {
		byName[u.Name] = u
	}
	out := make([]models.Maintainer, 0, len(explicit))
	for _, n := range explicit {
		if u, ok := byName[n]; ok {
			out = append(out, u.AsMaintainer())
			continue
		}
		out = append(out, models.Maintainer{Name: n})
	}
	return out, nil
}

// touchAlongside runs op and TouchLastModified(name) concurrently; either failing
// fails the call.
func (s *MaintainerService) touchAlongside(ctx context.Context, name string, op func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return op(gctx) })
	g.Go(func() error {
		_, err := s.modules.TouchLastModified(gctx, name)
		return err
	})
	return g.Wait()
}

// AddMaintainers adds users to the explicit maintainer list and returns the newly added
func (s *MaintainerService) AddMaintainers(ctx context.Context, name string, users []string) ([]string, error) {
	var added []string
	err := s.touchAlongside(ctx, name, func(ctx context.Context) error {
		var err error
		added, err = s.store.Add(ctx, name, users)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add maintainers to %s: %w", name, err)
	}
	return added, nil
}

// SetMaintainers replaces the explicit maintainer list
func (s *MaintainerService) SetMaintainers(ctx context.Context, name string, users []string) (added, removed []string, err error) {
	err = s.touchAlongside(ctx, name, func(ctx context.Context) error {
		var err error
		added, removed, err = s.store.Update(ctx, name, users)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set maintainers of %s: %w", name, err)
	}
	return added, removed, nil
}

// RemoveAllMaintainers clears the explicit maintainer list
func (s *MaintainerService) RemoveAllMaintainers(ctx context.Context, name string) ([]string, error) {
	var removed []string
	err := s.touchAlongside(ctx, name, func(ctx context.Context) error {
		var err error
		removed, err = s.store.RemoveAll(ctx, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove maintainers of %s: %w", name, err)
	}
	return removed, nil
}
