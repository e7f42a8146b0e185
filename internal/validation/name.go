// name.go validates package names and dist-tag labels before they reach the store.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// MaxPackageNameLength is the longest package name the registry accepts.
const MaxPackageNameLength = 214

// MaxTagNameLength matches the width of the tag column.
const MaxTagNameLength = 30

// ValidatePackageName checks a package name, scoped ("@scope/name") or not.
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if len(name) > MaxPackageNameLength {
		return fmt.Errorf("package name exceeds %d characters", MaxPackageNameLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("package name cannot have leading or trailing spaces")
	}
	if strings.ToLower(name) != name {
		return fmt.Errorf("package name must be lowercase: %s", name)
	}

	local := name
	if strings.HasPrefix(name, "@") {
		scope, rest, ok := strings.Cut(name[1:], "/")
		if !ok || scope == "" || rest == "" {
			return fmt.Errorf("scoped package name must be @scope/name: %s", name)
		}
		if err := validateNamePart(scope); err != nil {
			return fmt.Errorf("invalid scope: %w", err)
		}
		local = rest
	}
	return validateNamePart(local)
}

func validateNamePart(part string) error {
	if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "_") {
		return fmt.Errorf("name cannot start with a period or underscore: %s", part)
	}
	if url.PathEscape(part) != part {
		return fmt.Errorf("name can only contain URL-safe characters: %s", part)
	}
	return nil
}

// ValidateTagName checks a dist-tag label. Labels that parse as a semantic version
// would be ambiguous with versions in a "name@spec" request and are refused.
func ValidateTagName(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if len(tag) > MaxTagNameLength {
		return fmt.Errorf("tag exceeds %d characters", MaxTagNameLength)
	}
	if url.PathEscape(tag) != tag {
		return fmt.Errorf("tag can only contain URL-safe characters: %s", tag)
	}
	if ValidateSemver(tag) == nil {
		return fmt.Errorf("tag cannot be a valid semantic version: %s", tag)
	}
	return nil
}
