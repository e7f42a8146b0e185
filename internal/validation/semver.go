// semver.go checks versions the way npm expects them: strict MAJOR.MINOR.PATCH with
// optional pre-release and build metadata.
package validation

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// MaxVersionLength matches the width of the version columns.
const MaxVersionLength = 100

// parseStrict parses s as npm semver. go-version alone also accepts "v1", "1.0",
// "1.0.0beta" and four-segment versions.
func parseStrict(s string) (*version.Version, error) {
	if len(s) > MaxVersionLength {
		return nil, fmt.Errorf("invalid semantic version: longer than %d characters", MaxVersionLength)
	}
	v, err := version.NewSemver(s)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version: %w", err)
	}
	core := s
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 || strings.Trim(core, "0123456789.") != "" {
		return nil, fmt.Errorf("invalid semantic version: %q is not MAJOR.MINOR.PATCH", s)
	}
	return v, nil
}

// ValidateSemver reports whether s can be published as a version.
func ValidateSemver(s string) error {
	_, err := parseStrict(s)
	return err
}

// HighestVersion returns the greatest valid version in versions; entries that are not
// strict semver are ignored. Pre-releases win only when there is no release.
func HighestVersion(versions []string) string {
	var release, pre *version.Version
	var releaseStr, preStr string
	for _, s := range versions {
		v, err := parseStrict(s)
		if err != nil {
			continue
		}
		if v.Prerelease() == "" {
			if release == nil || v.GreaterThan(release) {
				release, releaseStr = v, s
			}
		} else if pre == nil || v.GreaterThan(pre) {
			pre, preStr = v, s
		}
	}
	if release != nil {
		return releaseStr
	}
	return preStr
}
