// maintainer_repository.go implements MaintainerRepository, the explicit maintainer
// lists. The same code serves two tables: module_maintainer for packages published
// here and npm_module_maintainer for packages synced from the upstream registry.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/npm-registry/npm-registry/internal/db/models"
)

const (
	localMaintainerTable    = "module_maintainer"
	upstreamMaintainerTable = "npm_module_maintainer"
)

// MaintainerRepository handles database operations for one maintainer-list table
type MaintainerRepository struct {
	db    *sqlx.DB
	table string
	now   func() time.Time
}

// NewMaintainerRepository returns the store for locally published packages
func NewMaintainerRepository(db *sqlx.DB) *MaintainerRepository {
	return &MaintainerRepository{db: db, table: localMaintainerTable, now: time.Now}
}

// NewNpmMaintainerRepository returns the store for packages synced from upstream
func NewNpmMaintainerRepository(db *sqlx.DB) *MaintainerRepository {
	return &MaintainerRepository{db: db, table: upstreamMaintainerTable, now: time.Now}
}

// ListByName returns the explicit maintainers of name in the order they were added
func (r *MaintainerRepository) ListByName(ctx context.Context, name string) ([]string, error) {
	var users []string
	query := fmt.Sprintf(`SELECT user_id FROM %s WHERE name = $1 ORDER BY id`, r.table)
	if err := r.db.SelectContext(ctx, &users, query, name); err != nil {
		return nil, fmt.Errorf("failed to list maintainers: %w", err)
	}
	return users, nil
}

// ListByNames returns the maintainer rows of several packages
func (r *MaintainerRepository) ListByNames(ctx context.Context, names []string) ([]models.ModuleMaintainer, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var rows []models.ModuleMaintainer
	query := fmt.Sprintf(
		`SELECT id, name, user_id, gmt_create FROM %s WHERE name = ANY($1) ORDER BY name, id`, r.table)
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list maintainers: %w", err)
	}
	return rows, nil
}

// ListByUser returns the names of packages user maintains
func (r *MaintainerRepository) ListByUser(ctx context.Context, user string) ([]string, error) {
	var names []string
	query := fmt.Sprintf(`SELECT name FROM %s WHERE user_id = $1 ORDER BY name`, r.table)
	if err := r.db.SelectContext(ctx, &names, query, user); err != nil {
		return nil, fmt.Errorf("failed to list maintained packages: %w", err)
	}
	return names, nil
}

// Add appends users to the maintainer list of name and returns those that were not
// already present.
func (r *MaintainerRepository) Add(ctx context.Context, name string, users []string) ([]string, error) {
	if len(users) == 0 {
		return []string{}, nil
	}
	added, err := r.insert(ctx, r.db, name, users)
	if err != nil {
		return nil, fmt.Errorf("failed to add maintainers: %w", err)
	}
	return added, nil
}

func (r *MaintainerRepository) insert(ctx context.Context, q sqlx.QueryerContext, name string, users []string) ([]string, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, user_id, gmt_create)
		SELECT $1, u, $3 FROM unnest($2::text[]) AS u
		ON CONFLICT (user_id, name) DO NOTHING
		RETURNING user_id`, r.table)
	added := []string{}
	if err := sqlx.SelectContext(ctx, q, &added, query, name, pq.Array(users), r.now()); err != nil {
		return nil, err
	}
	return added, nil
}

// Update replaces the maintainer list of name with users in one transaction and
// reports which users were added and removed.
func (r *MaintainerRepository) Update(ctx context.Context, name string, users []string) (added, removed []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	removed = []string{}
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE name = $1 AND NOT (user_id = ANY($2)) RETURNING user_id`, r.table)
	if err := tx.SelectContext(ctx, &removed, query, name, pq.Array(users)); err != nil {
		return nil, nil, fmt.Errorf("failed to remove maintainers: %w", err)
	}

	added = []string{}
	if len(users) > 0 {
		if added, err = r.insert(ctx, tx, name, users); err != nil {
			return nil, nil, fmt.Errorf("failed to add maintainers: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit maintainer update: %w", err)
	}
	return added, removed, nil
}

// RemoveAll clears the maintainer list of name and returns the removed users
func (r *MaintainerRepository) RemoveAll(ctx context.Context, name string) ([]string, error) {
	removed := []string{}
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1 RETURNING user_id`, r.table)
	if err := r.db.SelectContext(ctx, &removed, query, name); err != nil {
		return nil, fmt.Errorf("failed to remove maintainers: %w", err)
	}
	return removed, nil
}
