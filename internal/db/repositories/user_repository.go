// Package repositories implements the data access layer for the registry metadata
// core. Each repository type owns the SQL for one collection; services compose them
// and never issue SQL directly.
//
// Getters return (nil, nil) when a row does not exist. Mutators addressing a missing
// row return ErrNotFound.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/npm-registry/npm-registry/internal/db/models"
)

const userSelect = `SELECT id, name, email, gmt_create, gmt_modified FROM users`

// UserRepository handles user directory lookups
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByName retrieves a user by login name
func (r *UserRepository) GetByName(ctx context.Context, name string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, userSelect+` WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListByNames retrieves the users with the given names. Unknown names are skipped.
func (r *UserRepository) ListByNames(ctx context.Context, names []string) ([]models.User, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, userSelect+` WHERE name = ANY($1)`, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
