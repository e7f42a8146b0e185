// dependency_repository.go implements DependencyRepository, the version-independent
// dependency index. Edges are keyed by (name, dependency) and are only ever added;
// full package removal drops a package's outgoing edges but keeps edges that point at it.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"golang.org/x/sync/errgroup"
)

const dependencySelect = `SELECT id, name, dependency, gmt_create FROM module_deps`

// defaultBatchConcurrency bounds the number of in-flight inserts in AddBatch.
const defaultBatchConcurrency = 8

// DependencyRepository handles database operations for dependency edges
type DependencyRepository struct {
	db               *sqlx.DB
	batchConcurrency int
	now              func() time.Time
}

// NewDependencyRepository creates a new dependency repository
func NewDependencyRepository(db *sqlx.DB) *DependencyRepository {
	return &DependencyRepository{db: db, batchConcurrency: defaultBatchConcurrency, now: time.Now}
}

func (r *DependencyRepository) get(ctx context.Context, name, dependency string) (*models.ModuleDependency, error) {
	var d models.ModuleDependency
	err := r.db.GetContext(ctx, &d, dependencySelect+` WHERE name = $1 AND dependency = $2`, name, dependency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency: %w", err)
	}
	return &d, nil
}

// Add records that name depends on dependency. Adding an existing edge returns the
// stored row unchanged.
func (r *DependencyRepository) Add(ctx context.Context, name, dependency string) (*models.ModuleDependency, error) {
	existing, err := r.get(ctx, name, dependency)
	if err != nil || existing != nil {
		return existing, err
	}

	query := `
		INSERT INTO module_deps (name, dependency, gmt_create)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, dependency) DO NOTHING
		RETURNING id, name, dependency, gmt_create
	`
	var d models.ModuleDependency
	err = r.db.GetContext(ctx, &d, query, name, dependency, r.now())
	if errors.Is(err, sql.ErrNoRows) {
		// a concurrent Add won the insert
		return r.get(ctx, name, dependency)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add dependency: %w", err)
	}
	return &d, nil
}

// AddBatch adds one edge per dependency concurrently. Every insert runs to completion;
// the first error is returned and edges that were written are kept.
func (r *DependencyRepository) AddBatch(ctx context.Context, name string, dependencies []string) ([]*models.ModuleDependency, error) {
	results := make([]*models.ModuleDependency, len(dependencies))

	var g errgroup.Group
	g.SetLimit(r.batchConcurrency)
	for i, dep := range dependencies {
		g.Go(func() error {
			d, err := r.Add(ctx, name, dep)
			if err != nil {
				return fmt.Errorf("dependency %s: %w", dep, err)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ListDependencies returns the names name depends on
func (r *DependencyRepository) ListDependencies(ctx context.Context, name string) ([]string, error) {
	var deps []string
	if err := r.db.SelectContext(ctx, &deps,
		`SELECT dependency FROM module_deps WHERE name = $1 ORDER BY dependency`, name); err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	return deps, nil
}

// ListDependents returns the names of packages that depend on dependency
func (r *DependencyRepository) ListDependents(ctx context.Context, dependency string) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names,
		`SELECT name FROM module_deps WHERE dependency = $1 ORDER BY name`, dependency); err != nil {
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	return names, nil
}

// RemoveByName deletes the outgoing edges of name
func (r *DependencyRepository) RemoveByName(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM module_deps WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to remove dependencies: %w", err)
	}
	return result.RowsAffected()
}
