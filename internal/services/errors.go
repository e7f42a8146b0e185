// Package services implements the registry's business logic on top of the repositories:
// maintainer authorization, search, package listings, and publish orchestration. Each
// service receives the stores it needs through its constructor.
package services

import "errors"

var (
	// ErrForbidden is returned when a user may not mutate a package.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidVersion is returned for version strings that are not strict semver.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidName is returned for malformed package or dist-tag names.
	ErrInvalidName = errors.New("invalid name")

	// ErrVersionExists is returned when publishing over an existing version.
	ErrVersionExists = errors.New("version already exists")

	// ErrPackageNotFound is returned by mutations addressing a package with no versions.
	ErrPackageNotFound = errors.New("package not found")
)
