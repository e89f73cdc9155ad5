package metrics

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Features holds local text features derived from an input string.
//
// The shape fields (AlnumRunes onward) feed the closed-form token estimate:
//   - AlnumRunes/AlnumRuns: ASCII letters and digits, and the number of maximal runs of them.
//   - Punct: every other ASCII non-space rune.
//   - NonASCIIBytes: UTF-8 bytes of non-ASCII, non-space runes.
//   - ExtraSpace: per whitespace run, max(newlines, length-1).
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int

	AlnumRunes    int
	AlnumRuns     int
	Punct         int
	NonASCIIBytes int
	ExtraSpace    int
}

// CountFeatures computes byte, rune, word, line and shape counts for the input string.
func CountFeatures(s string) Features {
	f := Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: countWords(s),
		Lines: countLines(s),
	}

	inAlnum := false
	spaceRun, newlines := 0, 0
	flushSpace := func() {
		if spaceRun == 0 {
			return
		}
		f.ExtraSpace += max(newlines, spaceRun-1)
		spaceRun, newlines = 0, 0
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			inAlnum = false
			spaceRun++
			if r == '\n' {
				newlines++
			}
			continue
		case isASCIIAlnum(r):
			flushSpace()
			f.AlnumRunes++
			if !inAlnum {
				f.AlnumRuns++
				inAlnum = true
			}
			continue
		case r < utf8.RuneSelf:
			f.Punct++
		default:
			f.NonASCIIBytes += utf8.RuneLen(r)
		}
		flushSpace()
		inAlnum = false
	}
	flushSpace()
	return f
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// countWords counts words split on Unicode whitespace.
func countWords(s string) int {
	return len(strings.Fields(s))
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}
