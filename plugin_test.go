package fsr

import "testing"

func TestPluginDescription(t *testing.T) {
	d := PluginDescription()
	if d.Version.String() != "1.0.1" {
		t.Errorf("Version = %s, want 1.0.1", d.Version)
	}
	if d.Name != "AMD FidelityFX Super Resolution 1.0" {
		t.Errorf("Name = %q", d.Name)
	}
	if d.Category != "Rendering" || d.Author != "AMD" {
		t.Errorf("unexpected description %+v", d)
	}
	if got := d.String(); got != "AMD FidelityFX Super Resolution 1.0 v1.0.1" {
		t.Errorf("String() = %q", got)
	}
}

func TestDescriptionSatisfies(t *testing.T) {
	d := PluginDescription()
	tests := []struct {
		constraint string
		want       bool
		wantErr    bool
	}{
		{">= 1.0.0", true, false},
		{"~1.0", true, false},
		{">= 1.0, < 2", true, false},
		{"^2", false, false},
		{"not a constraint", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			got, err := d.Satisfies(tt.constraint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Satisfies(%q) err = %v", tt.constraint, err)
			}
			if got != tt.want {
				t.Errorf("Satisfies(%q) = %v, want %v", tt.constraint, got, tt.want)
			}
		})
	}
}
