package core

import "strings"

// CompareVersions compares two dotted versions the way IG registries are
// compared: split on '.', drop non-digit characters from each component and
// compare component-wise as integers. When every shared component is equal,
// the version with more components is greater.
//
// It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")

	for i := 0; i < min(len(pa), len(pb)); i++ {
		if c := compareNumeric(digitsOnly(pa[i]), digitsOnly(pb[i])); c != 0 {
			return c
		}
	}

	switch {
	case len(pa) > len(pb):
		return 1
	case len(pa) < len(pb):
		return -1
	}
	return 0
}

// IsLaterVersion reports whether a is strictly greater than b.
func IsLaterVersion(a, b string) bool {
	return CompareVersions(a, b) > 0
}

// MaxVersion returns the greatest version in vs, or "" when vs is empty.
func MaxVersion(vs []string) string {
	var latest string
	for _, v := range vs {
		if latest == "" || IsLaterVersion(v, latest) {
			latest = v
		}
	}
	return latest
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// compareNumeric compares two digit strings without converting them, so
// oversized components cannot overflow. An empty string counts as zero.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) > len(b) {
			return 1
		}
		return -1
	}
	return strings.Compare(a, b)
}
