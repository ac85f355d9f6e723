package core

// CorePackages lists the base specification package of each supported FHIR
// release. They are always bundled with the validation engine and are never
// fetched from a registry.
var CorePackages = []ResolvedName{
	{Name: "hl7.fhir.r3.core", Version: "3.0.2"},
	{Name: "hl7.fhir.r4.core", Version: "4.0.1"},
	{Name: "hl7.fhir.r4b.core", Version: "4.3.0"},
	{Name: "hl7.fhir.r5.core", Version: "5.0.0"},
}

// IsCorePackage reports whether name is one of the bundled core packages.
func IsCorePackage(name string) bool {
	for _, p := range CorePackages {
		if p.Name == name {
			return true
		}
	}
	return false
}

// CorePackageForFHIRVersion returns the core package for a FHIR version
// string such as "4.0.1" or "5.0.0".
func CorePackageForFHIRVersion(fhirVersion string) (ResolvedName, bool) {
	switch fhirVersion {
	case "3.0.0", "3.0.1", "3.0.2":
		return CorePackages[0], true
	case "4.0.0", "4.0.1":
		return CorePackages[1], true
	case "4.3.0":
		return CorePackages[2], true
	case "5.0.0":
		return CorePackages[3], true
	}
	return ResolvedName{}, false
}
