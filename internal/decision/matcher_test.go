package decision

import "testing"

func TestKeywordSet_Count(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		strategy string
		text     string
		want     int
	}{
		{"substring inside word", []string{"contact"}, MatchWordOrSubstring, "qual o contacto", 1},
		{"word only rejects substring", []string{"contact"}, MatchWord, "qual o contacto", 0},
		{"accented keyword at end", []string{"olá"}, MatchWord, "bom dia, olá", 1},
		{"accented keyword before punctuation", []string{"não"}, MatchWord, "não, obrigado", 1},
		{"phrase", []string{"plano de estudos"}, MatchWord, "o plano de estudos de gestão", 1},
		{"duplicates counted once", []string{"prazo", "PRAZO", " prazo "}, MatchWordOrSubstring, "prazo", 1},
		{"empty entries ignored", []string{"", "  "}, MatchWordOrSubstring, "qualquer coisa", 0},
		{"regex metacharacters are literal", []string{"?", "ulusofona.pt"}, MatchWordOrSubstring, "ulusofona-pt", 0},
		{"question mark substring", []string{"?"}, MatchWordOrSubstring, "quando?", 1},
		{"distinct entries", []string{"propina", "propinas", "prazo"}, MatchWordOrSubstring, "propinas", 2},
		{"empty text", []string{"prazo"}, MatchWordOrSubstring, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newKeywordSet(tt.words, tt.strategy)
			if got := set.count(tt.text); got != tt.want {
				t.Errorf("count(%q) = %d, want %d", tt.text, got, tt.want)
			}
			if got := set.any(tt.text); got != (tt.want > 0) {
				t.Errorf("any(%q) = %v, want %v", tt.text, got, tt.want > 0)
			}
		})
	}
}

func TestKeyword_FallbackWithoutPattern(t *testing.T) {
	// An entry whose pattern failed to compile matches by substring even in
	// strict word mode.
	kw := keyword{text: "contact"}
	if !kw.matches("qual o contacto", true) {
		t.Error("expected substring fallback when no pattern is compiled")
	}
}

func TestYearPatterns(t *testing.T) {
	tests := []struct {
		text       string
		fullYear   bool
		longNumber bool
		shortYear  bool
	}{
		{"propinas 2025", true, true, false},
		{"propinas 25", false, false, true},
		{"código 123456", false, true, false},
		{"ano 1999", false, true, false},
		{"sala 125", false, false, false},
		{"24/25", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := hasFullYear(tt.text); got != tt.fullYear {
				t.Errorf("hasFullYear = %v, want %v", got, tt.fullYear)
			}
			if got := hasLongNumber(tt.text); got != tt.longNumber {
				t.Errorf("hasLongNumber = %v, want %v", got, tt.longNumber)
			}
			if got := hasShortYear(tt.text); got != tt.shortYear {
				t.Errorf("hasShortYear = %v, want %v", got, tt.shortYear)
			}
		})
	}
}

func TestContainsAnyExact(t *testing.T) {
	markers := []string{"http://", "https://", "Fonte"}

	if !containsAnyExact("veja https://example.pt", markers) {
		t.Error("expected url marker to match")
	}
	if containsAnyExact("a fonte oficial", markers) {
		t.Error("markers are case sensitive")
	}
	if containsAnyExact("", markers) {
		t.Error("empty text must not match")
	}
	if containsAnyExact("anything", []string{""}) {
		t.Error("empty marker must not match")
	}
}
