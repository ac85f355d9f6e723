package core

import (
	"fmt"
	"strings"
)

// VersionLatest is the version tag that asks for the newest known version.
const VersionLatest = "latest"

// Reference is a loose package reference such as "name", "name#version" or
// "name#latest". An empty Version means the reference is unresolved.
type Reference struct {
	Name    string
	Version string
}

// ParseReference splits text on the first '#'. Everything before it is the
// name; everything after it, if present, is the version.
func ParseReference(text string) Reference {
	name, version, found := strings.Cut(text, "#")
	if !found {
		return Reference{Name: name}
	}
	return Reference{Name: name, Version: version}
}

// IsLatest reports whether the reference needs version resolution.
func (r Reference) IsLatest() bool {
	return r.Version == "" || r.Version == VersionLatest
}

// Resolved returns the concrete name when the reference pins a version.
func (r Reference) Resolved() (ResolvedName, bool) {
	if r.IsLatest() {
		return ResolvedName{}, false
	}
	return ResolvedName{Name: r.Name, Version: r.Version}, true
}

func (r Reference) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "#" + r.Version
}

// ResolvedName is a package identity with a concrete version. It never
// carries "latest".
type ResolvedName struct {
	Name    string
	Version string
}

// NewResolvedName validates and builds a ResolvedName.
func NewResolvedName(name, version string) (ResolvedName, error) {
	if name == "" {
		return ResolvedName{}, &ValidationError{Reason: "package name is empty"}
	}
	if version == "" || version == VersionLatest {
		return ResolvedName{}, &ValidationError{Reason: fmt.Sprintf("package %s has no concrete version", name)}
	}
	return ResolvedName{Name: name, Version: version}, nil
}

func (n ResolvedName) String() string {
	return n.Name + "#" + n.Version
}

// Reference converts the resolved name back into a pinned reference.
func (n ResolvedName) Reference() Reference {
	return Reference{Name: n.Name, Version: n.Version}
}
