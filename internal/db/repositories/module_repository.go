// module_repository.go implements ModuleRepository, the module-version store: one row per
// published (name, version) holding the serialized manifest plus denormalized columns
// (description, dist info) used by listings that must not parse manifests.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/safego"
	"github.com/npm-registry/npm-registry/internal/telemetry"
)

const moduleSelect = `
	SELECT m.id, m.name, m.version, m.author, m.description, m.package,
	       m.dist_tarball, m.dist_shasum, m.dist_size, m.publish_time,
	       m.gmt_create, m.gmt_modified
	FROM module m`

// KeywordIndexer receives the normalized keywords of every saved version.
type KeywordIndexer interface {
	AddKeywords(ctx context.Context, name, description string, keywords []string) error
}

// ModuleRepository handles database operations for module versions
type ModuleRepository struct {
	db            *sqlx.DB
	keywords      KeywordIndexer
	asyncKeywords bool
	asyncTimeout  time.Duration
	now           func() time.Time
}

// NewModuleRepository creates a new module repository. keywords may be nil, in which
// case saved keywords are not indexed.
func NewModuleRepository(db *sqlx.DB, keywords KeywordIndexer) *ModuleRepository {
	return &ModuleRepository{db: db, keywords: keywords, now: time.Now}
}

// defaultAsyncIndexTimeout bounds background keyword indexing when no timeout is given.
const defaultAsyncIndexTimeout = 10 * time.Second

// EnableAsyncKeywordIndexing makes Save return before keywords are indexed. The
// background write outlives the request but is still bounded by timeout.
func (r *ModuleRepository) EnableAsyncKeywordIndexing(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultAsyncIndexTimeout
	}
	r.asyncKeywords = true
	r.asyncTimeout = timeout
}

// decodePackage parses the stored manifest in place. A broken manifest is logged and
// left nil so one bad row never fails a listing.
func decodePackage(m *models.ModuleVersion) {
	if !m.RawPackage.Valid || m.RawPackage.String == "" {
		return
	}
	pkg, err := models.DecodeManifest(m.RawPackage.String)
	if err != nil {
		slog.Warn("failed to parse package manifest",
			"name", m.Name, "id", m.ID, "version", m.Version, "error", err)
		return
	}
	m.Package = pkg
}

func (r *ModuleRepository) getOne(ctx context.Context, what, query string, args ...interface{}) (*models.ModuleVersion, error) {
	var m models.ModuleVersion
	err := r.db.GetContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	decodePackage(&m)
	return &m, nil
}

// Get retrieves an exact (name, version), or nil if it was never published
func (r *ModuleRepository) Get(ctx context.Context, name, version string) (*models.ModuleVersion, error) {
	return r.getOne(ctx, "module version", moduleSelect+` WHERE m.name = $1 AND m.version = $2`, name, version)
}

// GetByID retrieves a module version by row id
func (r *ModuleRepository) GetByID(ctx context.Context, id int64) (*models.ModuleVersion, error) {
	return r.getOne(ctx, "module version by id", moduleSelect+` WHERE m.id = $1`, id)
}

// GetLatestByName returns the version the "latest" dist-tag points at, falling back to
// the most recently created version when the package has no such tag.
func (r *ModuleRepository) GetLatestByName(ctx context.Context, name string) (*models.ModuleVersion, error) {
	query := moduleSelect + `
	LEFT JOIN tag t ON t.name = m.name AND t.tag = $2 AND t.module_id = m.id
	WHERE m.name = $1
	ORDER BY (t.id IS NOT NULL) DESC, m.id DESC
	LIMIT 1`
	return r.getOne(ctx, "latest module version", query, name, models.LatestTag)
}

// ListByName returns every version of a package, most recently created first
func (r *ModuleRepository) ListByName(ctx context.Context, name string) ([]*models.ModuleVersion, error) {
	var versions []*models.ModuleVersion
	if err := r.db.SelectContext(ctx, &versions, moduleSelect+` WHERE m.name = $1 ORDER BY m.id DESC`, name); err != nil {
		return nil, fmt.Errorf("failed to list module versions: %w", err)
	}
	for _, v := range versions {
		decodePackage(v)
	}
	return versions, nil
}

// GetLastModified returns the newest gmt_modified across all versions of name, or nil
// when the package has no versions.
func (r *ModuleRepository) GetLastModified(ctx context.Context, name string) (*time.Time, error) {
	var t time.Time
	err := r.db.GetContext(ctx, &t,
		`SELECT gmt_modified FROM module WHERE name = $1 ORDER BY gmt_modified DESC LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module last modified: %w", err)
	}
	return &t, nil
}

// Save inserts or updates the row for (mod.Name, mod.Version). Publishing the same
// version twice updates it in place and gmt_modified never moves backwards.
// Keywords found in the manifest are forwarded to the keyword index; indexing failures
// are logged, not returned.
func (r *ModuleRepository) Save(ctx context.Context, mod *models.ModuleVersion) (*models.SaveResult, error) {
	pkg := mod.Package
	if pkg == nil {
		pkg = models.Manifest{}
	}
	raw, err := models.EncodeManifest(pkg)
	if err != nil {
		return nil, err
	}

	description := mod.Description
	if description == "" {
		description = pkg.Description()
	}
	dist := pkg.Dist()
	now := r.now()
	publishTime := mod.PublishTime
	if publishTime == 0 {
		publishTime = now.UnixMilli()
	}

	query := `
		INSERT INTO module
		  (name, version, author, description, package, dist_tarball, dist_shasum, dist_size,
		   publish_time, gmt_create, gmt_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (name, version) DO UPDATE SET
		  author = EXCLUDED.author,
		  description = EXCLUDED.description,
		  package = EXCLUDED.package,
		  dist_tarball = EXCLUDED.dist_tarball,
		  dist_shasum = EXCLUDED.dist_shasum,
		  dist_size = EXCLUDED.dist_size,
		  publish_time = EXCLUDED.publish_time,
		  gmt_modified = GREATEST(EXCLUDED.gmt_modified, module.gmt_modified)
		RETURNING id, gmt_modified
	`

	var result models.SaveResult
	err = r.db.GetContext(ctx, &result, query,
		mod.Name,
		mod.Version,
		mod.Author,
		description,
		raw,
		dist.Tarball,
		dist.Shasum,
		dist.Size,
		publishTime,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save module version: %w", err)
	}

	if words := pkg.Keywords(); len(words) > 0 {
		r.indexKeywords(ctx, mod.Name, description, words)
	}

	return &result, nil
}

func (r *ModuleRepository) indexKeywords(ctx context.Context, name, description string, words []string) {
	if r.keywords == nil {
		return
	}

	index := func(ctx context.Context) {
		if err := r.keywords.AddKeywords(ctx, name, description, words); err != nil {
			telemetry.KeywordIndexErrorsTotal.Inc()
			slog.Error("failed to index package keywords", "name", name, "keywords", words, "error", err)
		}
	}

	if r.asyncKeywords {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.asyncTimeout)
		safego.Go("keyword-index", func() {
			defer cancel()
			index(bg)
		})
		return
	}
	index(ctx)
}

// UpdatePackage replaces the stored manifest of a row
func (r *ModuleRepository) UpdatePackage(ctx context.Context, id int64, pkg models.Manifest) error {
	raw, err := models.EncodeManifest(pkg)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE module SET package = $1, gmt_modified = GREATEST($2, gmt_modified) WHERE id = $3`,
		raw, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update module package: %w", err)
	}
	return requireAffected(result, "module")
}

// loadForUpdate fetches a row whose manifest is about to be rewritten. A row whose
// stored manifest cannot be parsed is refused rather than overwritten.
func (r *ModuleRepository) loadForUpdate(ctx context.Context, id int64) (*models.ModuleVersion, models.Manifest, error) {
	mod, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if mod == nil {
		return nil, nil, fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	if mod.Package == nil {
		if mod.RawPackage.Valid && mod.RawPackage.String != "" {
			return nil, nil, fmt.Errorf("module %d: %w", id, models.ErrManifestDecode)
		}
		return mod, models.Manifest{}, nil
	}
	return mod, mod.Package.Clone(), nil
}

// UpdatePackageFields shallow-merges fields into the stored manifest. Keys not named
// in fields are preserved.
func (r *ModuleRepository) UpdatePackageFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	_, pkg, err := r.loadForUpdate(ctx, id)
	if err != nil {
		return err
	}
	pkg.Merge(fields)
	return r.UpdatePackage(ctx, id, pkg)
}

// UpdateReadme sets manifest.readme
func (r *ModuleRepository) UpdateReadme(ctx context.Context, id int64, readme string) error {
	return r.UpdatePackageFields(ctx, id, map[string]interface{}{"readme": readme})
}

// UpdateDescription sets both the description column and manifest.description in a
// single write.
func (r *ModuleRepository) UpdateDescription(ctx context.Context, id int64, description string) error {
	_, pkg, err := r.loadForUpdate(ctx, id)
	if err != nil {
		return err
	}
	pkg["description"] = description
	raw, err := models.EncodeManifest(pkg)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE module
		SET description = $1, package = $2, gmt_modified = GREATEST($3, gmt_modified)
		WHERE id = $4`,
		description, raw, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update module description: %w", err)
	}
	return requireAffected(result, "module")
}

// TouchLastModified bumps gmt_modified on the most recently modified version of name so
// change-feed readers see the package as updated. Returns nil when the package has no
// versions.
func (r *ModuleRepository) TouchLastModified(ctx context.Context, name string) (*time.Time, error) {
	query := `
		UPDATE module SET gmt_modified = GREATEST($2, gmt_modified)
		WHERE id = (
			SELECT id FROM module WHERE name = $1
			ORDER BY gmt_modified DESC, id DESC
			LIMIT 1
		)
		RETURNING gmt_modified
	`
	var t time.Time
	err := r.db.GetContext(ctx, &t, query, name, r.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to touch module last modified: %w", err)
	}
	return &t, nil
}

// RemoveByName deletes every version of a package
func (r *ModuleRepository) RemoveByName(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM module WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to remove module versions: %w", err)
	}
	return result.RowsAffected()
}

// RemoveByNameAndVersions deletes the given versions of a package
func (r *ModuleRepository) RemoveByNameAndVersions(ctx context.Context, name string, versions []string) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM module WHERE name = $1 AND version = ANY($2)`, name, pq.Array(versions))
	if err != nil {
		return 0, fmt.Errorf("failed to remove module versions: %w", err)
	}
	return result.RowsAffected()
}

// ListPublicNamesByAuthor returns the distinct non-scoped package names user has
// published at least one version of.
func (r *ModuleRepository) ListPublicNamesByAuthor(ctx context.Context, user string) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names,
		`SELECT DISTINCT name FROM module WHERE author = $1 ORDER BY name`, user); err != nil {
		return nil, fmt.Errorf("failed to list module names by author: %w", err)
	}
	return publicNames(names), nil
}

// ListSummariesByIDs returns name and description for the given row ids, ordered by name.
// Manifests are not loaded.
func (r *ModuleRepository) ListSummariesByIDs(ctx context.Context, ids []int64) ([]models.ModuleSummary, error) {
	if len(ids) == 0 {
		return []models.ModuleSummary{}, nil
	}
	var summaries []models.ModuleSummary
	if err := r.db.SelectContext(ctx, &summaries,
		`SELECT name, description FROM module WHERE id = ANY($1) ORDER BY name`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list module summaries: %w", err)
	}
	return summaries, nil
}

// ListByIDs returns full rows for the given ids
func (r *ModuleRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.ModuleVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var versions []*models.ModuleVersion
	if err := r.db.SelectContext(ctx, &versions,
		moduleSelect+` WHERE m.id = ANY($1) ORDER BY m.name`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list module versions by id: %w", err)
	}
	for _, v := range versions {
		decodePackage(v)
	}
	return versions, nil
}

func requireAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
