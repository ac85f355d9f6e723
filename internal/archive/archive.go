// Package archive parses npm-style IG package archives (gzip-compressed tar
// with a top-level package/ folder) into core.Archive values.
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/igcache/internal/core"
)

// MaxFileSize bounds a single file inside an archive.
const MaxFileSize = 256 << 20

// Manifest is the package.json of an IG package.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Canonical       string            `json:"canonical"`
	URL             string            `json:"url"`
	License         string            `json:"license"`
	FHIRVersion     string            `json:"fhirVersion"`
	FHIRVersions    []string          `json:"fhirVersions"`
	FHIRVersionList []string          `json:"fhir-version-list"`
	Dependencies    map[string]string `json:"dependencies"`
}

// Parse decompresses raw and builds an Archive from its manifest and files.
// Any failure is returned as a *core.ValidationError.
func Parse(raw []byte) (*core.Archive, error) {
	if len(raw) == 0 {
		return nil, &core.ValidationError{Reason: "archive is empty"}
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &core.ValidationError{Reason: "not a gzip stream", Err: err}
	}
	defer func() { _ = gz.Close() }()

	folders := make(map[string]map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.ValidationError{Reason: "reading tar entry", Err: err}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > MaxFileSize {
			return nil, &core.ValidationError{Reason: fmt.Sprintf("file %s exceeds size limit", hdr.Name)}
		}

		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		folder, file := path.Split(name)
		folder = strings.TrimSuffix(folder, "/")
		if folder == "" || strings.HasPrefix(folder, "..") {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, MaxFileSize))
		if err != nil {
			return nil, &core.ValidationError{Reason: "reading " + name, Err: err}
		}
		if folders[folder] == nil {
			folders[folder] = make(map[string][]byte)
		}
		folders[folder][file] = data
	}

	manifestData, ok := folders[core.PackageFolder][core.ManifestFile]
	if !ok {
		return nil, &core.ValidationError{Reason: "missing package/package.json"}
	}

	var m Manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return nil, &core.ValidationError{Reason: "malformed package.json", Err: err}
	}
	if m.Name == "" || m.Version == "" {
		return nil, &core.ValidationError{Reason: "package.json must declare name and version"}
	}

	return fromManifest(&m, folders), nil
}

func fromManifest(m *Manifest, folders map[string]map[string][]byte) *core.Archive {
	fhirVersions := m.FHIRVersions
	if len(fhirVersions) == 0 {
		fhirVersions = m.FHIRVersionList
	}

	deps := make([]string, 0, len(m.Dependencies))
	for name, version := range m.Dependencies {
		deps = append(deps, name+"#"+version)
	}
	sort.Strings(deps)

	return &core.Archive{
		Name:         m.Name,
		Version:      m.Version,
		Canonical:    m.Canonical,
		URL:          m.URL,
		License:      m.License,
		FHIRVersion:  fhirVersion(m, fhirVersions),
		FHIRVersions: fhirVersions,
		Dependencies: deps,
		Folders:      folders,
	}
}

// fhirVersion picks the declared FHIR version: the explicit field, then the
// first entry of the version list, then the version of a core dependency.
func fhirVersion(m *Manifest, list []string) string {
	if m.FHIRVersion != "" {
		return m.FHIRVersion
	}
	if len(list) > 0 {
		return list[0]
	}
	for name, version := range m.Dependencies {
		if core.IsCorePackage(name) {
			return version
		}
	}
	return ""
}
