// Package models - module.go defines the ModuleVersion model, one immutable row per
// published (name, version), plus the lightweight projections returned by listings.
package models

import (
	"database/sql"
	"strings"
	"time"
)

// ModuleVersion represents a single published version of a package
type ModuleVersion struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Version     string `json:"version" db:"version"`
	Author      string `json:"author" db:"author"` // user who published this version
	Description string `json:"description" db:"description"`
	// RawPackage is the manifest exactly as stored; Package is its decoded form and is
	// nil when decoding failed.
	RawPackage  sql.NullString `json:"-" db:"package"`
	Package     Manifest       `json:"package" db:"-"`
	DistTarball string         `json:"dist_tarball" db:"dist_tarball"`
	DistShasum  string         `json:"dist_shasum" db:"dist_shasum"`
	DistSize    int64          `json:"dist_size" db:"dist_size"`
	PublishTime int64          `json:"publish_time" db:"publish_time"` // unix millis
	GmtCreate   time.Time      `json:"gmt_create" db:"gmt_create"`
	GmtModified time.Time      `json:"gmt_modified" db:"gmt_modified"`
}

// ModuleSummary is the name/description projection used by search and user listings.
type ModuleSummary struct {
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// SaveResult is returned by a module save. It deliberately omits the manifest.
type SaveResult struct {
	ID          int64     `json:"id" db:"id"`
	GmtModified time.Time `json:"gmt_modified" db:"gmt_modified"`
}

// IsScopedName reports whether a package name carries an @scope/ prefix.
// Scoped packages are private and never listed publicly.
func IsScopedName(name string) bool {
	return strings.HasPrefix(name, "@")
}
