package client

import "testing"

func TestURLs(t *testing.T) {
	u := NewURLs("https://packages.fhir.org/")

	if got := u.BaseURL(); got != "https://packages.fhir.org" {
		t.Errorf("BaseURL() = %q", got)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"download", u.Download("hl7.fhir.us.core", "6.1.0"), "https://packages.fhir.org/hl7.fhir.us.core/6.1.0"},
		{"download without version", u.Download("hl7.fhir.us.core", ""), "https://packages.fhir.org/hl7.fhir.us.core"},
		{"versions", u.Versions("hl7.fhir.us.core"), "https://packages.fhir.org/hl7.fhir.us.core"},
		{"catalog", u.Catalog("http://hl7.org/fhir/us/core"), "https://packages.fhir.org/catalog?pkgcanonical=http%3A%2F%2Fhl7.org%2Ffhir%2Fus%2Fcore"},
		{"purl", u.PURL("hl7.fhir.us.core", "6.1.0"), "pkg:npm/hl7.fhir.us.core@6.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://packages.fhir.org":     "https://packages.fhir.org",
		"https://packages.fhir.org/":    "https://packages.fhir.org",
		" https://packages.fhir.org// ": "https://packages.fhir.org",
	}
	for in, want := range tests {
		if got := NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildURLs(t *testing.T) {
	urls := BuildURLs(NewURLs("https://packages2.fhir.org"), "acme.ig", "1.0.0")

	if urls["download"] != "https://packages2.fhir.org/acme.ig/1.0.0" {
		t.Errorf("download = %q", urls["download"])
	}
	if urls["versions"] != "https://packages2.fhir.org/acme.ig" {
		t.Errorf("versions = %q", urls["versions"])
	}
	if urls["purl"] != "pkg:npm/acme.ig@1.0.0" {
		t.Errorf("purl = %q", urls["purl"])
	}
}
