// star_repository.go implements StarRepository, the user-starred-package relation.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// StarRepository handles database operations for stars
type StarRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStarRepository creates a new star repository
func NewStarRepository(db *sqlx.DB) *StarRepository {
	return &StarRepository{db: db, now: time.Now}
}

// Add stars name for user. Starring twice is a no-op.
func (r *StarRepository) Add(ctx context.Context, name, user string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO module_star (name, user_id, gmt_create)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO NOTHING`,
		name, user, r.now())
	if err != nil {
		return fmt.Errorf("failed to add star: %w", err)
	}
	return nil
}

// Remove un-stars name for user
func (r *StarRepository) Remove(ctx context.Context, name, user string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM module_star WHERE name = $1 AND user_id = $2`, name, user); err != nil {
		return fmt.Errorf("failed to remove star: %w", err)
	}
	return nil
}

// ListStargazers returns the users who starred name
func (r *StarRepository) ListStargazers(ctx context.Context, name string) ([]string, error) {
	var users []string
	if err := r.db.SelectContext(ctx, &users,
		`SELECT user_id FROM module_star WHERE name = $1 ORDER BY user_id`, name); err != nil {
		return nil, fmt.Errorf("failed to list stargazers: %w", err)
	}
	return users, nil
}

// ListStarredNames returns the packages user has starred
func (r *StarRepository) ListStarredNames(ctx context.Context, user string) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names,
		`SELECT name FROM module_star WHERE user_id = $1 ORDER BY name`, user); err != nil {
		return nil, fmt.Errorf("failed to list starred packages: %w", err)
	}
	return names, nil
}

// RemoveByName drops every star of a package
func (r *StarRepository) RemoveByName(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM module_star WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to remove stars: %w", err)
	}
	return result.RowsAffected()
}
