package listing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics and collapses whitespace,
// so "Citroën  C3" and "citroen c3" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ContainsFold reports whether phrase occurs in text, ignoring case and accents.
func ContainsFold(text, phrase string) bool {
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(Normalize(text), p)
}

// FirstMatch returns the first phrase found in text, or "".
func FirstMatch(text string, phrases []string) string {
	normalized := Normalize(text)
	for _, phrase := range phrases {
		p := Normalize(phrase)
		if p != "" && strings.Contains(normalized, p) {
			return phrase
		}
	}
	return ""
}
