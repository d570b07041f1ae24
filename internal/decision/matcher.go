package decision

import (
	"regexp"
	"strings"
)

var (
	fullYearPattern   = regexp.MustCompile(`\b20\d{2}\b`)
	longNumberPattern = regexp.MustCompile(`\b\d{4,}\b`)
	shortYearPattern  = regexp.MustCompile(`\b(24|25)\b`)
)

// Word boundaries are Unicode aware so accented keywords such as "olá" match
// at the end of a sentence.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// keyword is one compiled entry of a keyword list.
type keyword struct {
	text string
	word *regexp.Regexp // nil when the pattern failed to compile
}

// keywordSet matches a configured keyword list against lowercased text.
type keywordSet struct {
	entries  []keyword
	wordOnly bool
}

// newKeywordSet lowercases and de-duplicates the list and compiles a
// whole-word pattern per entry. Empty entries are dropped.
func newKeywordSet(words []string, strategy string) keywordSet {
	set := keywordSet{
		entries:  make([]keyword, 0, len(words)),
		wordOnly: strategy == MatchWord,
	}
	seen := make(map[string]bool, len(words))

	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true

		kw := keyword{text: w}
		if re, err := regexp.Compile(wordStart + regexp.QuoteMeta(w) + wordEnd); err == nil {
			kw.word = re
		}
		set.entries = append(set.entries, kw)
	}

	return set
}

// count returns how many distinct entries occur in text. Text must already
// be lowercased.
func (s keywordSet) count(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, kw := range s.entries {
		if kw.matches(text, s.wordOnly) {
			n++
		}
	}
	return n
}

// any reports whether at least one entry occurs in text.
func (s keywordSet) any(text string) bool {
	if text == "" {
		return false
	}
	for _, kw := range s.entries {
		if kw.matches(text, s.wordOnly) {
			return true
		}
	}
	return false
}

func (k keyword) matches(text string, wordOnly bool) bool {
	if k.word != nil {
		if k.word.MatchString(text) {
			return true
		}
		if wordOnly {
			return false
		}
	}
	return strings.Contains(text, k.text)
}

// containsAnyExact is a case-sensitive substring check, used for link and
// citation markers.
func containsAnyExact(text string, markers []string) bool {
	if text == "" {
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func hasFullYear(text string) bool {
	return fullYearPattern.MatchString(text)
}

func hasLongNumber(text string) bool {
	return longNumberPattern.MatchString(text)
}

func hasShortYear(text string) bool {
	return shortYearPattern.MatchString(text)
}
