package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 10, ""},
		{"plain", "hello", 10, "hello"},
		{"control characters", "a\x00b\nc\rd", 10, "abcd"},
		{"truncated", "abcdefghij", 4, "abcd..."},
		{"invalid utf8", "ok\xff", 10, "ok"},
		{"default max", strings.Repeat("x", 10), 0, strings.Repeat("x", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.in, tt.max); got != tt.want {
				t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}
	if got := SanitizeError(errors.New("bad\ninput")); got != "badinput" {
		t.Errorf("SanitizeError() = %q, want %q", got, "badinput")
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a***@example.com"},
		{"a@x.com", "a***@x.com"},
		{"no-at-sign", "***"},
		{"@x.com", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := MaskEmail(tt.in); got != tt.want {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	if got := MaskToken(""); got != "" {
		t.Errorf("MaskToken(\"\") = %q, want empty", got)
	}
	if got := MaskToken("short"); got != "***" {
		t.Errorf("MaskToken(short) = %q, want ***", got)
	}
	if got := MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"); got != "eyJhbGci***" {
		t.Errorf("MaskToken() = %q, want eyJhbGci***", got)
	}
}
