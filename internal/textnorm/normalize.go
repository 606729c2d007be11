// Package textnorm canonicalizes portal text so that differently accented,
// cased, or punctuated labels compare equal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining marks, turning
// "Citação" into "Citacao".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns the canonical comparison form of s: accents stripped,
// lowercased, everything outside [a-z0-9\s] removed, whitespace collapsed
// to single spaces and trimmed. It never fails and is idempotent.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Malformed input; fall back to the raw string so the
		// remaining steps still apply.
		out = s
	}
	out = strings.ToLower(out)

	var b strings.Builder
	b.Grow(len(out))
	lastSpace := true // leading whitespace is dropped
	for _, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// DigitsOnly strips every non-digit rune from s. This is the canonical form
// for process numbers: "0032782-96.2023.8.03.0001" and
// "00327829620238030001" collapse to the same key.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
