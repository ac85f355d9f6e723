package archive

import (
	"encoding/json"

	"github.com/github/go-spdx/v2/spdxexp"

	"github.com/git-pkgs/igcache/internal/core"
)

// Meta is the JSON document stored next to the raw archive bytes.
type Meta struct {
	Version      string   `json:"version"`
	Canonical    string   `json:"canonical"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	FHIRVersion  string   `json:"fhirVersion"`
	FHIRVersions []string `json:"fhirVersions,omitempty"`
	License      string   `json:"license,omitempty"`
}

// NewMeta derives the stored metadata of an archive. The license is kept only
// when it is a valid SPDX expression.
func NewMeta(a *core.Archive) Meta {
	m := Meta{
		Version:      a.Version,
		Canonical:    a.Canonical,
		Name:         a.Name,
		URL:          a.URL,
		FHIRVersion:  a.FHIRVersion,
		FHIRVersions: a.FHIRVersions,
	}
	if a.License != "" {
		if valid, _ := spdxexp.ValidateLicenses([]string{a.License}); valid {
			m.License = a.License
		}
	}
	return m
}

// MarshalMeta encodes the metadata of an archive.
func MarshalMeta(a *core.Archive) (json.RawMessage, error) {
	return json.Marshal(NewMeta(a))
}
