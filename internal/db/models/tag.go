// Package models - tag.go defines dist-tags, the mutable named pointers that resolve a
// package name plus a label such as "latest" to one concrete version.
package models

import "time"

// LatestTag is the dist-tag every install without an explicit version resolves.
const LatestTag = "latest"

// Tag represents a dist-tag row
type Tag struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Tag         string    `json:"tag" db:"tag"`
	ModuleID    int64     `json:"module_id" db:"module_id"`
	Version     string    `json:"version" db:"version"` // copy of the target module's version
	GmtCreate   time.Time `json:"gmt_create" db:"gmt_create"`
	GmtModified time.Time `json:"gmt_modified" db:"gmt_modified"`
}

// TagResult is returned by a tag assignment.
type TagResult struct {
	ID          int64     `json:"id" db:"id"`
	ModuleID    int64     `json:"module_id" db:"module_id"`
	GmtModified time.Time `json:"gmt_modified" db:"gmt_modified"`
}
