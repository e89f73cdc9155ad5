package safety

import (
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Detector decides whether content looks like personal information that
// needs the user's explicit permission before it is remembered.
type Detector interface {
	Personal(content string) bool
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(content string) bool

func (f DetectorFunc) Personal(content string) bool { return f(content) }

// DefaultMarkers are the phrases KeywordDetector looks for.
var DefaultMarkers = []string{"prefer", "like", "my", "i am", "i'm", "we use", "our team"}

// KeywordDetector flags content containing any marker as a whole word or
// phrase, case-insensitively. "my" matches "my team" but not "myth".
//
// Markers are scanned in one pass with an Aho-Corasick automaton over the
// lowercased, whitespace-collapsed content; matches inside a longer word are
// discarded afterwards.
type KeywordDetector struct {
	ac    ahocorasick.AhoCorasick
	empty bool
}

// NewKeywordDetector builds the automaton. With no markers, DefaultMarkers are used.
func NewKeywordDetector(markers ...string) *KeywordDetector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	patterns := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = normalize(m); m != "" {
			patterns = append(patterns, m)
		}
	}
	if len(patterns) == 0 {
		return &KeywordDetector{empty: true}
	}
	b := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: false, // input is lowercased already
		MatchOnlyWholeWords:  false, // boundaries are checked below
		MatchKind:            ahocorasick.StandardMatch,
	})
	return &KeywordDetector{ac: b.Build(patterns)}
}

func (d *KeywordDetector) Personal(content string) bool {
	if d == nil || d.empty {
		return false
	}
	text := normalize(content)
	if text == "" {
		return false
	}
	iter := d.ac.IterOverlapping(text)
	for m := iter.Next(); m != nil; m = iter.Next() {
		if wholeWord(text, m.Start(), m.End()) {
			return true
		}
	}
	return false
}

// normalize lowercases s and collapses whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wholeWord(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
