package core

import (
	"testing"
)

func TestResolvedNamePURL(t *testing.T) {
	tests := []struct {
		name ResolvedName
		want string
	}{
		{ResolvedName{Name: "hl7.fhir.us.core", Version: "6.1.0"}, "pkg:npm/hl7.fhir.us.core@6.1.0"},
		{ResolvedName{Name: "acme.ig", Version: "1.0.0"}, "pkg:npm/acme.ig@1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name.String(), func(t *testing.T) {
			if got := tt.name.PURL(); got != tt.want {
				t.Errorf("PURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePURL(t *testing.T) {
	tests := []struct {
		input   string
		want    Reference
		wantErr bool
	}{
		{"pkg:npm/hl7.fhir.us.core", Reference{Name: "hl7.fhir.us.core"}, false},
		{"pkg:npm/hl7.fhir.us.core@6.1.0", Reference{Name: "hl7.fhir.us.core", Version: "6.1.0"}, false},
		{"pkg:cargo/serde@1.0.0", Reference{}, true},
		{"npm/acme.ig", Reference{}, true}, // missing pkg: prefix
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsValidation(err) {
					t.Errorf("error = %T, want *ValidationError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParsePURL(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPURLRoundTrip(t *testing.T) {
	n := ResolvedName{Name: "acme.lib", Version: "2.0.0"}
	ref, err := ParsePURL(n.PURL())
	if err != nil {
		t.Fatalf("ParsePURL failed: %v", err)
	}
	got, ok := ref.Resolved()
	if !ok {
		t.Fatal("expected a pinned reference")
	}
	if got != n {
		t.Errorf("round trip = %+v, want %+v", got, n)
	}
}
