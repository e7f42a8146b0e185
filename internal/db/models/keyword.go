// Package models - keyword.go defines the keyword search index entry.
package models

import "time"

// ModuleKeyword maps one keyword to a package, carrying a copy of its description so
// keyword hits can be listed without loading the module.
type ModuleKeyword struct {
	ID          int64     `json:"id" db:"id"`
	Keyword     string    `json:"keyword" db:"keyword"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	GmtCreate   time.Time `json:"gmt_create" db:"gmt_create"`
}
