// Package models - dependency.go defines the version-independent dependency edge.
package models

import "time"

// ModuleDependency records that package Name depends on package Dependency
type ModuleDependency struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Dependency string    `json:"dependency" db:"dependency"`
	GmtCreate  time.Time `json:"gmt_create" db:"gmt_create"`
}
