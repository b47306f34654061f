package hostname

import (
	"strings"
	"testing"
)

func TestSanitise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"clean", "node01", "node01"},
		{"uppercase", "MyHost", "myhost"},
		{"spaces", "my host", "myhost"},
		{"special chars", "my@host!name", "myhostname"},
		{"control chars", "pc\x00\x1b[31m", "pc31m"},
		{"emoji", "laptop😀", "laptop"},
		{"leading dots", "..myhost", "myhost"},
		{"trailing hyphens", "myhost--", "myhost"},
		{"collapse", "a--b..c", "a-b.c"},
		{"localhost", "localhost", ""},
		{"localhost mixed case", "LocalHost", ""},
		{"android", "android-0123456789abcdef", ""},
		{"only junk", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitise(tt.in); got != tt.want {
				t.Errorf("Sanitise(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitiseMaxLength(t *testing.T) {
	got := Sanitise(strings.Repeat("a", 62) + "-bbbb")
	if len(got) > MaxLength {
		t.Fatalf("len = %d, want <= %d", len(got), MaxLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("truncated name ends with a hyphen: %q", got)
	}
}
