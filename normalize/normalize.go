// Package normalize canonicalizes free-text personal names for comparison.
// The registry stores names with inconsistent accents, punctuation and
// particle words; every comparison in this module runs on the normalized
// form. All functions are pure and safe for concurrent use.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and drops combining diacritical marks,
// so "Pérez" and "Perez" compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// particles are short Spanish connectives that carry no identity signal
// in Dominican names ("María de los Santos" vs "María Santos").
var particles = map[string]bool{
	"de": true, "del": true, "la": true, "las": true,
	"los": true, "el": true, "y": true,
}

// Normalize lowercases, strips diacritics, turns `.`, `,` and `-` into
// spaces, drops everything outside [a-z0-9 ] and collapses whitespace.
// Always succeeds; empty input yields empty output.
func Normalize(text string) string {
	text = strings.ToLower(text)
	if stripped, _, err := transform.String(stripMarks, text); err == nil {
		text = stripped
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '.' || r == ',' || r == '-':
			b.WriteByte(' ')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ':
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits the normalized text on spaces. With removeParticles set,
// connective particle words are filtered out.
func Tokens(text string, removeParticles bool) []string {
	fields := strings.Fields(Normalize(text))
	if !removeParticles {
		return fields
	}
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if !particles[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Compact normalizes and removes all remaining spaces. Used for substring
// checks robust to missing or extra spacing between name parts.
func Compact(text string) string {
	return strings.ReplaceAll(Normalize(text), " ", "")
}
