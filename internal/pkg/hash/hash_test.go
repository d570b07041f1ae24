package hash

import (
	"strings"
	"testing"
)

func TestSHA256Short(t *testing.T) {
	const full = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	tests := []struct {
		n    int
		want string
	}{
		{8, full[:8]},
		{16, full[:16]},
		{32, full[:32]},
		{64, full},  // full hash
		{100, full}, // exceeds length, returns full
	}

	for _, tt := range tests {
		got := SHA256Short([]byte("hello"), tt.n)
		if got != tt.want {
			t.Errorf("SHA256Short(hello, %d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Propinas  2025", "propinas 2025"},
		{"  prazo\tde\ncandidaturas ", "prazo de candidaturas"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryKey(t *testing.T) {
	// Same normalized inputs should produce same output
	id1 := QueryKey("Propinas 2025", 3)
	id2 := QueryKey("  propinas   2025", 3)

	if id1 != id2 {
		t.Errorf("QueryKey not normalized: %s != %s", id1, id2)
	}

	// Different counts should produce different output
	id3 := QueryKey("propinas 2025", 5)
	if id1 == id3 {
		t.Errorf("QueryKey collision: %s == %s", id1, id3)
	}

	// Should be 32 characters
	if len(id1) != 32 {
		t.Errorf("QueryKey length = %d, want 32", len(id1))
	}

	// Should be hex
	for _, c := range id1 {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("QueryKey contains non-hex character: %c", c)
		}
	}
}

func BenchmarkQueryKey(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		QueryKey("prazo de candidaturas Lusófona 2025", 2)
	}
}
