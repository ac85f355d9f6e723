// Package core provides the identity types, archive model and errors shared by
// every layer of the IG package cache.
package core

import (
	"sort"
	"strings"
)

// Archive is a parsed IG package held in memory.
type Archive struct {
	Name         string
	Version      string
	Canonical    string
	URL          string
	FHIRVersion  string
	FHIRVersions []string
	License      string

	// Dependencies are "name#version" strings, sorted.
	Dependencies []string

	// Folders maps a folder inside the archive ("package", "package/example")
	// to the files it holds, keyed by base name.
	Folders map[string]map[string][]byte
}

// ResolvedName returns the concrete identity of the archive.
func (a *Archive) ResolvedName() ResolvedName {
	return ResolvedName{Name: a.Name, Version: a.Version}
}

// File returns the content of a file in the given folder.
func (a *Archive) File(folder, name string) ([]byte, bool) {
	files, ok := a.Folders[folder]
	if !ok {
		return nil, false
	}
	data, ok := files[name]
	return data, ok
}

// Resources lists the conformance resource files in the package folder,
// excluding the manifest and the index.
func (a *Archive) Resources() []string {
	files := a.Folders[PackageFolder]
	names := make([]string, 0, len(files))
	for name := range files {
		if name == ManifestFile || name == IndexFile {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	// PackageFolder is the top-level folder of an npm-style archive.
	PackageFolder = "package"

	// ManifestFile is the package manifest inside PackageFolder.
	ManifestFile = "package.json"

	// IndexFile is the optional resource index inside PackageFolder.
	IndexFile = ".index.json"
)
