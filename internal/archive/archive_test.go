package archive

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/git-pkgs/igcache/internal/core"
	"github.com/git-pkgs/igcache/internal/testutil"
)

func TestParse(t *testing.T) {
	raw := testutil.BuildArchive(t, testutil.Package{
		Name:         "acme.ig",
		Version:      "1.0.0",
		Canonical:    "http://acme.org/fhir/ig",
		License:      "CC0-1.0",
		FHIRVersions: []string{"4.0.1"},
		Dependencies: map[string]string{
			"hl7.fhir.r4.core": "4.0.1",
			"acme.lib":         "2.0.0",
		},
		Files: map[string]string{
			"package/StructureDefinition-acme-patient.json": `{"resourceType":"StructureDefinition"}`,
			"package/.index.json":                           `{"files":[]}`,
			"package/example/Patient-example.json":          `{"resourceType":"Patient"}`,
		},
	})

	a, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if a.Name != "acme.ig" || a.Version != "1.0.0" {
		t.Errorf("identity = %s#%s, want acme.ig#1.0.0", a.Name, a.Version)
	}
	if a.Canonical != "http://acme.org/fhir/ig" {
		t.Errorf("Canonical = %q", a.Canonical)
	}
	if a.FHIRVersion != "4.0.1" {
		t.Errorf("FHIRVersion = %q, want 4.0.1", a.FHIRVersion)
	}

	wantDeps := []string{"acme.lib#2.0.0", "hl7.fhir.r4.core#4.0.1"}
	if !reflect.DeepEqual(a.Dependencies, wantDeps) {
		t.Errorf("Dependencies = %v, want %v", a.Dependencies, wantDeps)
	}

	if _, ok := a.File("package/example", "Patient-example.json"); !ok {
		t.Error("expected example file in package/example folder")
	}

	wantResources := []string{"StructureDefinition-acme-patient.json"}
	if got := a.Resources(); !reflect.DeepEqual(got, wantResources) {
		t.Errorf("Resources() = %v, want %v", got, wantResources)
	}
}

func TestParseFHIRVersionList(t *testing.T) {
	manifest := `{"name":"old.ig","version":"0.1.0","fhir-version-list":["3.0.2"]}`
	raw := testutil.BuildTarGz(t, map[string][]byte{"package/package.json": []byte(manifest)})

	a, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(a.FHIRVersions, []string{"3.0.2"}) {
		t.Errorf("FHIRVersions = %v", a.FHIRVersions)
	}
	if a.FHIRVersion != "3.0.2" {
		t.Errorf("FHIRVersion = %q", a.FHIRVersion)
	}
}

func TestParseFHIRVersionFromCoreDependency(t *testing.T) {
	raw := testutil.BuildArchive(t, testutil.Package{
		Name:         "acme.lib",
		Version:      "2.0.0",
		Dependencies: map[string]string{"hl7.fhir.r5.core": "5.0.0"},
	})

	a, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a.FHIRVersion != "5.0.0" {
		t.Errorf("FHIRVersion = %q, want 5.0.0", a.FHIRVersion)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"not gzip", []byte("definitely not an archive")},
		{"no manifest", testutil.BuildTarGz(t, map[string][]byte{"package/other.json": []byte(`{}`)})},
		{"bad manifest", testutil.BuildTarGz(t, map[string][]byte{"package/package.json": []byte(`{`)})},
		{"no version", testutil.BuildTarGz(t, map[string][]byte{"package/package.json": []byte(`{"name":"x"}`)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.IsValidation(err) {
				t.Errorf("error = %T (%v), want *core.ValidationError", err, err)
			}
		})
	}
}

func TestMarshalMeta(t *testing.T) {
	a := &core.Archive{
		Name:         "acme.ig",
		Version:      "1.0.0",
		Canonical:    "http://acme.org/fhir/ig",
		URL:          "http://acme.org/fhir/ig",
		FHIRVersion:  "4.0.1",
		FHIRVersions: []string{"4.0.1"},
		License:      "CC0-1.0",
	}

	raw, err := MarshalMeta(a)
	if err != nil {
		t.Fatalf("MarshalMeta failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"version", "canonical", "name", "url", "fhirVersion", "fhirVersions"} {
		if _, ok := got[key]; !ok {
			t.Errorf("meta is missing %q: %s", key, raw)
		}
	}
	if got["license"] != "CC0-1.0" {
		t.Errorf("license = %v, want CC0-1.0", got["license"])
	}
}

func TestNewMetaDropsUnknownLicense(t *testing.T) {
	m := NewMeta(&core.Archive{Name: "x", Version: "1", License: "Some Custom Terms"})
	if m.License != "" {
		t.Errorf("License = %q, want empty", m.License)
	}
}

func TestParserBound(t *testing.T) {
	p := NewParser(0)
	if p.Workers() <= 0 {
		t.Errorf("Workers() = %d, want > 0", p.Workers())
	}

	raw := testutil.BuildArchive(t, testutil.Package{Name: "acme.ig", Version: "1.0.0"})
	a, err := NewParser(1).Parse(context.Background(), raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a.Name != "acme.ig" {
		t.Errorf("Name = %q", a.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewParser(1).Parse(ctx, raw); err == nil {
		t.Error("expected error for cancelled context")
	}
}
