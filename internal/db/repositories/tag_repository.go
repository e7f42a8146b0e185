// tag_repository.go implements TagRepository, the dist-tag resolver. A tag maps
// (package name, label) to one module row; assignments are only accepted for versions
// that already exist in the module store.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/npm-registry/npm-registry/internal/db/models"
)

const tagSelect = `SELECT id, name, tag, module_id, version, gmt_create, gmt_modified FROM tag`

// ModuleGetter is the part of the module store the tag resolver depends on.
type ModuleGetter interface {
	Get(ctx context.Context, name, version string) (*models.ModuleVersion, error)
}

// TagRepository handles database operations for dist-tags
type TagRepository struct {
	db      *sqlx.DB
	modules ModuleGetter
	now     func() time.Time
}

// NewTagRepository creates a new tag repository that validates assignments against modules
func NewTagRepository(db *sqlx.DB, modules ModuleGetter) *TagRepository {
	return &TagRepository{db: db, modules: modules, now: time.Now}
}

// Get resolves (name, tag), returning nil when the tag does not exist
func (r *TagRepository) Get(ctx context.Context, name, tag string) (*models.Tag, error) {
	var t models.Tag
	err := r.db.GetContext(ctx, &t, tagSelect+` WHERE name = $1 AND tag = $2`, name, tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

// GetModule resolves a tag to the module version it points at. Returns nil if either
// the tag or the version is missing.
func (r *TagRepository) GetModule(ctx context.Context, name, tag string) (*models.ModuleVersion, error) {
	t, err := r.Get(ctx, name, tag)
	if err != nil || t == nil {
		return nil, err
	}
	return r.modules.Get(ctx, t.Name, t.Version)
}

// Assign points (name, tag) at version. The version must already be published;
// otherwise ErrConstraintViolation is returned and no tag row is written.
func (r *TagRepository) Assign(ctx context.Context, name, tag, version string) (*models.TagResult, error) {
	mod, err := r.modules.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: cannot tag %s as %q, version %s does not exist",
			ErrConstraintViolation, name, tag, version)
	}

	query := `
		INSERT INTO tag (name, tag, module_id, version, gmt_create, gmt_modified)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name, tag) DO UPDATE SET
		  module_id = EXCLUDED.module_id,
		  version = EXCLUDED.version,
		  gmt_modified = EXCLUDED.gmt_modified
		RETURNING id, module_id, gmt_modified
	`
	var result models.TagResult
	if err := r.db.GetContext(ctx, &result, query, name, tag, mod.ID, version, r.now()); err != nil {
		return nil, fmt.Errorf("failed to assign tag: %w", err)
	}
	return &result, nil
}

// ListByName returns every tag of a package
func (r *TagRepository) ListByName(ctx context.Context, name string) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, tagSelect+` WHERE name = $1`, name); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// RemoveByName deletes all tags of a package
func (r *TagRepository) RemoveByName(ctx context.Context, name string) (int64, error) {
	return r.remove(ctx, `DELETE FROM tag WHERE name = $1`, name)
}

// RemoveByIDs deletes tags by row id
func (r *TagRepository) RemoveByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.remove(ctx, `DELETE FROM tag WHERE id = ANY($1)`, pq.Array(ids))
}

// RemoveByNameAndTags deletes the named tags of a package
func (r *TagRepository) RemoveByNameAndTags(ctx context.Context, name string, tags []string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	return r.remove(ctx, `DELETE FROM tag WHERE name = $1 AND tag = ANY($2)`, name, pq.Array(tags))
}

func (r *TagRepository) remove(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove tags: %w", err)
	}
	return result.RowsAffected()
}

// ListAllPublicNames returns every tagged, non-scoped package name in name order
func (r *TagRepository) ListAllPublicNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, `SELECT DISTINCT name FROM tag ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list package names: %w", err)
	}
	return publicNames(names), nil
}

// ListPublicNamesSince returns non-scoped package names with a tag change after since
func (r *TagRepository) ListPublicNamesSince(ctx context.Context, since time.Time) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names,
		`SELECT DISTINCT name FROM tag WHERE gmt_modified > $1 ORDER BY name`, since); err != nil {
		return nil, fmt.Errorf("failed to list package names since %s: %w", since.Format(time.RFC3339), err)
	}
	return publicNames(names), nil
}

// ListLatestByNames returns the "latest" tags of the given packages
func (r *TagRepository) ListLatestByNames(ctx context.Context, names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags,
		tagSelect+` WHERE tag = $1 AND name = ANY($2) ORDER BY name`, models.LatestTag, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list latest tags: %w", err)
	}
	return tags, nil
}

// ListLatestByNamePrefix returns the "latest" tags of packages whose name starts with
// prefix, e.g. every package of a scope.
func (r *TagRepository) ListLatestByNamePrefix(ctx context.Context, prefix string) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags,
		tagSelect+` WHERE tag = $1 AND name LIKE $2 ORDER BY name`, models.LatestTag, EscapeLike(prefix)+"%"); err != nil {
		return nil, fmt.Errorf("failed to list latest tags by prefix: %w", err)
	}
	return tags, nil
}

// SearchLatestModuleIDs matches pattern case-insensitively (LIKE syntax) against the
// names of "latest" tags and returns the tagged module ids, ordered by name.
func (r *TagRepository) SearchLatestModuleIDs(ctx context.Context, pattern string, limit int) ([]int64, error) {
	query := `
		SELECT module_id FROM tag
		WHERE LOWER(name) LIKE LOWER($1) AND tag = $2
		ORDER BY name
		LIMIT $3
	`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pattern, models.LatestTag, limit); err != nil {
		return nil, fmt.Errorf("failed to search tags: %w", err)
	}
	return ids, nil
}
