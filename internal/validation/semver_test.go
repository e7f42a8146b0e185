package validation

import (
	"strings"
	"testing"
)

func TestValidateSemver(t *testing.T) {
	valid := []string{"0.0.0", "1.2.3", "100.200.300", "1.0.0-beta", "1.0.0-rc.1", "1.0.0+sha.5114f85", "2.0.0-next.3+build"}
	for _, v := range valid {
		if err := ValidateSemver(v); err != nil {
			t.Errorf("ValidateSemver(%q) = %v, want nil", v, err)
		}
	}

	long := "1.0.0-" + strings.Repeat("a", MaxVersionLength)
	if err := ValidateSemver(long[:MaxVersionLength]); err != nil {
		t.Errorf("ValidateSemver of a %d character version = %v, want nil", MaxVersionLength, err)
	}

	invalid := []string{long, "", "latest", "1", "1.0", "v1.0.0", "1.0.0.0", "-1.0.0", "1.0.x", "1.0.0 ", "1.0.0beta"}
	for _, v := range invalid {
		if err := ValidateSemver(v); err == nil {
			t.Errorf("ValidateSemver(%q) = nil, want error", v)
		}
	}
}

func TestHighestVersion(t *testing.T) {
	cases := map[string]struct {
		in   []string
		want string
	}{
		"nothing published":          {nil, ""},
		"numeric not lexical order":  {[]string{"1.9.0", "1.10.0", "1.2.0"}, "1.10.0"},
		"release beats newer beta":   {[]string{"1.4.2", "2.0.0-beta.1"}, "1.4.2"},
		"only pre-releases":          {[]string{"3.0.0-alpha", "3.0.0-rc.1", "3.0.0-beta"}, "3.0.0-rc.1"},
		"loose versions are ignored": {[]string{"9.9", "v8.0.0", "0.1.0"}, "0.1.0"},
		"nothing valid":              {[]string{"latest", "next"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := HighestVersion(tc.in); got != tc.want {
				t.Errorf("HighestVersion(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
