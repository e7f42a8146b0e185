// keyword_repository.go implements KeywordRepository, the keyword side-index used by
// search. Each (keyword, name) pair is stored once and carries a copy of the package
// description so hits can be listed without touching the module store.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/npm-registry/npm-registry/internal/db/models"
	"golang.org/x/sync/errgroup"
)

// KeywordRepository handles database operations for the keyword index
type KeywordRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewKeywordRepository creates a new keyword repository
func NewKeywordRepository(db *sqlx.DB) *KeywordRepository {
	return &KeywordRepository{db: db, now: time.Now}
}

// Upsert indexes one keyword, refreshing the stored description when the pair exists
func (r *KeywordRepository) Upsert(ctx context.Context, kw *models.ModuleKeyword) error {
	query := `
		INSERT INTO module_keyword (keyword, name, description, gmt_create)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (keyword, name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, gmt_create
	`
	row := r.db.QueryRowxContext(ctx, query, kw.Keyword, kw.Name, kw.Description, r.now())
	if err := row.Scan(&kw.ID, &kw.GmtCreate); err != nil {
		return fmt.Errorf("failed to upsert keyword %q: %w", kw.Keyword, err)
	}
	return nil
}

// AddKeywords indexes every keyword of a package concurrently and returns the first
// failure once all writes have finished.
func (r *KeywordRepository) AddKeywords(ctx context.Context, name, description string, keywords []string) error {
	var g errgroup.Group
	for _, word := range keywords {
		g.Go(func() error {
			return r.Upsert(ctx, &models.ModuleKeyword{Keyword: word, Name: name, Description: description})
		})
	}
	return g.Wait()
}

// FindByKeyword returns the entries for an exact keyword, newest first
func (r *KeywordRepository) FindByKeyword(ctx context.Context, keyword string, limit int) ([]models.ModuleKeyword, error) {
	query := `
		SELECT id, keyword, name, description, gmt_create
		FROM module_keyword
		WHERE keyword = $1
		ORDER BY id DESC
		LIMIT $2
	`
	var entries []models.ModuleKeyword
	if err := r.db.SelectContext(ctx, &entries, query, keyword, limit); err != nil {
		return nil, fmt.Errorf("failed to search keywords: %w", err)
	}
	return entries, nil
}

// RemoveByName drops every keyword entry of a package
func (r *KeywordRepository) RemoveByName(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM module_keyword WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to remove keywords: %w", err)
	}
	return result.RowsAffected()
}
