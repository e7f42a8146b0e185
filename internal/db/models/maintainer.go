// Package models - maintainer.go defines package maintainers, both the explicit
// maintainer-list rows and the {name, email} pairs shown to clients.
package models

import "time"

// Maintainer is a maintainer as displayed to clients and as embedded in manifests
type Maintainer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ModuleMaintainer is one explicit maintainer-list entry
type ModuleMaintainer struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	User      string    `json:"user" db:"user_id"`
	GmtCreate time.Time `json:"gmt_create" db:"gmt_create"`
}

// MaintainerNames returns just the names of a maintainer list.
func MaintainerNames(ms []Maintainer) []string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.Name)
	}
	return names
}
