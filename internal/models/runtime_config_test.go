package models

import (
	"slices"
	"testing"
)

func TestSplitOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"blank entries", " , ,", nil},
		{"single", "https://a.example.com", []string{"https://a.example.com"}},
		{"keeps order", "https://b.com, https://a.com", []string{"https://b.com", "https://a.com"}},
		{"drops repeats", "x, x, y", []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SplitOrigins(tt.raw); !slices.Equal(got, tt.want) {
				t.Errorf("SplitOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCorsConfig_Origins(t *testing.T) {
	t.Parallel()

	var missing *CorsConfig
	if got := missing.Origins(); got != nil {
		t.Errorf("nil config Origins() = %v, want nil", got)
	}
	c := &CorsConfig{AllowedOrigins: "https://a.com,https://b.com"}
	if got := c.Origins(); len(got) != 2 {
		t.Errorf("Origins() = %v, want 2 entries", got)
	}
}
