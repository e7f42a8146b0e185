// Package models - user.go defines the registry user as seen by the metadata core:
// a unique login name and a contact email.
package models

import "time"

// User represents a registry account
type User struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	GmtCreate   time.Time `json:"gmt_create" db:"gmt_create"`
	GmtModified time.Time `json:"gmt_modified" db:"gmt_modified"`
}

// AsMaintainer returns the display form of the user.
func (u *User) AsMaintainer() Maintainer {
	return Maintainer{Name: u.Name, Email: u.Email}
}
