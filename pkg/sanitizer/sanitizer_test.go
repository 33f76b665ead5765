package sanitizer

import (
	"reflect"
	"testing"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Zumba", "Zumba"},
		{"leading and trailing spaces", "  Zumba  ", "Zumba"},
		{"inner whitespace collapsed", "morning   functional\tclass", "morning functional class"},
		{"empty", "", ""},
		{"only whitespace", "   \t\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizeClassType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "pilates", "pilates"},
		{"mixed case", "Pilates", "pilates"},
		{"surrounding whitespace", "  ZUMBA ", "zumba"},
		{"inner whitespace stripped", "func tional", "functional"},
		{"empty stays empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeClassType(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizeClassTypes(t *testing.T) {
	got := NormalizeClassTypes([]string{" Pilates", "ZUMBA", "pilates", "", "  "})
	want := []string{"pilates", "zumba"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
