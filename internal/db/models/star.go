// Package models - star.go defines the user-starred-package relation.
package models

import "time"

// ModuleStar records that User starred package Name
type ModuleStar struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	User      string    `json:"user" db:"user_id"`
	GmtCreate time.Time `json:"gmt_create" db:"gmt_create"`
}
