package validation

import (
	"strings"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		{"simple", "express", false},
		{"dashes and dots", "lodash.merge-deep", false},
		{"scoped", "@babel/core", false},
		{"empty", "", true},
		{"uppercase", "React", true},
		{"leading dot", ".hidden", true},
		{"leading underscore", "_private", true},
		{"space", "my pkg", true},
		{"slash without scope", "a/b", true},
		{"scope without name", "@babel/", true},
		{"scope missing slash", "@babel", true},
		{"too long", strings.Repeat("a", MaxPackageNameLength+1), true},
		{"max length", strings.Repeat("a", MaxPackageNameLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.pkg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTagName(t *testing.T) {
	tests := map[string]bool{
		"latest":   false,
		"beta":     false,
		"next-2":   false,
		"":         true,
		"1.0.0":    true,
		"a b":      true,
		"v1.0.0":   false,
		"2.0.0-rc": true,
	}
	tests[strings.Repeat("t", MaxTagNameLength)] = false
	tests[strings.Repeat("t", MaxTagNameLength+1)] = true
	for tag, wantErr := range tests {
		if err := ValidateTagName(tag); (err != nil) != wantErr {
			t.Errorf("ValidateTagName(%q) error = %v, wantErr %v", tag, err, wantErr)
		}
	}
}
