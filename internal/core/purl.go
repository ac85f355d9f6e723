package core

import (
	"fmt"

	packageurl "github.com/package-url/packageurl-go"
)

// purlType is the PURL type used for IG packages. IG archives follow the npm
// package layout and registries speak the npm protocol.
const purlType = "npm"

// PURL returns the Package URL for the resolved name, e.g.
// "pkg:npm/hl7.fhir.us.core@6.1.0".
func (n ResolvedName) PURL() string {
	return packageurl.NewPackageURL(purlType, "", n.Name, n.Version, nil, "").ToString()
}

// ParsePURL converts a Package URL into a pinned Reference. A PURL without a
// version yields an unresolved reference.
func ParsePURL(purl string) (Reference, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return Reference{}, &ValidationError{Reason: "invalid package URL", Err: err}
	}
	if p.Type != purlType {
		return Reference{}, &ValidationError{Reason: fmt.Sprintf("unsupported package URL type %q", p.Type)}
	}

	name := p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return Reference{Name: name, Version: p.Version}, nil
}
