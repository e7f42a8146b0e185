package repositories

import (
	"errors"
	"strings"

	"github.com/npm-registry/npm-registry/internal/db/models"
)

var (
	// ErrNotFound is returned by mutators addressing a row id that does not exist.
	// Getters signal a miss with a nil result instead.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned when a write would break referential
	// integrity, e.g. tagging a version that was never published. Nothing is written.
	ErrConstraintViolation = errors.New("constraint violation")
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike neutralises LIKE metacharacters so user input only matches literally.
// Patterns built from it rely on PostgreSQL's default backslash escape.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// publicNames drops scoped (private) package names.
func publicNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !models.IsScopedName(name) {
			out = append(out, name)
		}
	}
	return out
}
