// Package testutil builds IG package archives for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Package describes an archive to build.
type Package struct {
	Name         string
	Version      string
	Canonical    string
	License      string
	FHIRVersions []string
	Dependencies map[string]string

	// Files are extra entries keyed by path inside the archive,
	// e.g. "package/StructureDefinition-x.json".
	Files map[string]string
}

// BuildArchive returns a gzip-compressed tar with package/package.json and
// the extra files of p.
func BuildArchive(t testing.TB, p Package) []byte {
	t.Helper()

	manifest := map[string]any{
		"name":    p.Name,
		"version": p.Version,
	}
	if p.Canonical != "" {
		manifest["canonical"] = p.Canonical
		manifest["url"] = p.Canonical
	}
	if p.License != "" {
		manifest["license"] = p.License
	}
	if len(p.FHIRVersions) > 0 {
		manifest["fhirVersions"] = p.FHIRVersions
	}
	if len(p.Dependencies) > 0 {
		manifest["dependencies"] = p.Dependencies
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}

	files := map[string][]byte{"package/package.json": data}
	for name, content := range p.Files {
		files[name] = []byte(content)
	}
	return BuildTarGz(t, files)
}

// BuildTarGz writes files into a gzip-compressed tar.
func BuildTarGz(t testing.TB, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}
