// Package models - manifest.go defines the open-ended package manifest document stored with
// every module version, together with its storage codec and typed accessors.
//
// Manifests are kept as a generic JSON tree rather than a fixed struct so that fields the
// registry does not know about survive a load/merge/save cycle untouched.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// legacyManifestPrefix is `{"` after encodeURIComponent. Rows written by older releases
// stored the manifest as URL-encoded JSON; everything newer is plain JSON.
const legacyManifestPrefix = "%7B%22"

// PublishedLocallyKey is the manifest flag set on versions published directly to this
// registry. Versions without it were synced from the upstream registry.
const PublishedLocallyKey = "_publish_on_cnpm"

// ErrManifestDecode is returned when a stored manifest cannot be parsed.
var ErrManifestDecode = errors.New("failed to decode package manifest")

// Manifest is a package.json-like document for one version.
type Manifest map[string]interface{}

// Dist holds the denormalized tarball information from manifest.dist.
type Dist struct {
	Tarball string
	Shasum  string
	Size    int64
}

// EncodeManifest serializes a manifest in the current storage format (plain JSON).
func EncodeManifest(m Manifest) (string, error) {
	if m == nil {
		m = Manifest{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode package manifest: %w", err)
	}
	return string(b), nil
}

// DecodeManifest parses a stored manifest, transparently handling the legacy
// URL-encoded format.
func DecodeManifest(raw string) (Manifest, error) {
	payload := raw
	if strings.HasPrefix(payload, legacyManifestPrefix) {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: legacy payload: %v", ErrManifestDecode, err)
		}
		payload = decoded
	}

	var m Manifest
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}
	return m, nil
}

// Clone returns a shallow copy. Nested values are shared.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge shallow-merges fields into the manifest, overwriting existing keys.
func (m Manifest) Merge(fields map[string]interface{}) {
	for k, v := range fields {
		m[k] = v
	}
}

func (m Manifest) stringField(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Description returns manifest.description, or "" when absent or not a string.
func (m Manifest) Description() string {
	return m.stringField("description")
}

// Readme returns manifest.readme.
func (m Manifest) Readme() string {
	return m.stringField("readme")
}

// MaxKeywordLength matches the width of the keyword index column.
const MaxKeywordLength = 100

// Keywords normalizes manifest.keywords. Both a single string and a list are accepted;
// entries are trimmed, and empty, non-string or over-long entries are dropped.
func (m Manifest) Keywords() []string {
	var raw []interface{}
	switch v := m["keywords"].(type) {
	case string:
		raw = []interface{}{v}
	case []interface{}:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	default:
		return nil
	}

	words := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || utf8.RuneCountInString(s) > MaxKeywordLength {
			continue
		}
		words = append(words, s)
	}
	return words
}

// Dist extracts tarball, shasum and size from manifest.dist.
func (m Manifest) Dist() Dist {
	var d Dist
	raw, ok := m["dist"].(map[string]interface{})
	if !ok {
		return d
	}
	d.Tarball, _ = raw["tarball"].(string)
	d.Shasum, _ = raw["shasum"].(string)
	switch size := raw["size"].(type) {
	case float64:
		d.Size = int64(size)
	case int64:
		d.Size = size
	case int:
		d.Size = int64(size)
	case json.Number:
		d.Size, _ = size.Int64()
	}
	return d
}

// Maintainers returns the maintainers embedded in the manifest. Entries without a name
// are skipped.
func (m Manifest) Maintainers() []Maintainer {
	list, ok := m["maintainers"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Maintainer, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		email, _ := entry["email"].(string)
		out = append(out, Maintainer{Name: name, Email: email})
	}
	return out
}

// PublishedLocally reports whether the version was published to this registry rather
// than synced from upstream. Any truthy flag value counts.
func (m Manifest) PublishedLocally() bool {
	switch v := m[PublishedLocallyKey].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// DependencyNames returns the sorted keys of manifest.dependencies.
func (m Manifest) DependencyNames() []string {
	deps, ok := m["dependencies"].(map[string]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
