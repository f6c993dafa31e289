package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/lysyi3m/auto-comb/app/listing"
)

var brandAliases = map[string][]string{
	"volkswagen": {"vw"},
	"mercedes":   {"mercedes-benz"},
}

// BrandMatches uses the brand attribute when present and falls back to the title.
func BrandMatches(r listing.Record, brand string) bool {
	b := listing.Normalize(brand)
	names := append([]string{b}, brandAliases[b]...)

	if r.Brand != "" {
		for _, name := range names {
			if r.Brand == name {
				return true
			}
		}
		return false
	}

	title := listing.Normalize(r.Title)
	for _, name := range names {
		if strings.Contains(title, name) {
			return true
		}
	}
	return false
}

// ModelMatches compares the model attribute, or looks for the model as a whole word in the
// title so that "2" matches "Mazda 2" or "Mazda2" but not "Mazda 323".
func ModelMatches(r listing.Record, brand, model string) bool {
	m := listing.Normalize(model)
	if m == "" {
		return true
	}

	if r.Model != "" {
		return r.Model == m || strings.HasPrefix(r.Model, m+" ")
	}

	title := listing.Normalize(r.Title)
	b := strings.ReplaceAll(listing.Normalize(brand), " ", "")
	return containsWord(title, m) || containsWord(title, b+m)
}

// wordPatterns caches the compiled boundary pattern per word.
var wordPatterns sync.Map

func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	return wordPattern(word).MatchString(text)
}

func wordPattern(word string) *regexp.Regexp {
	if cached, ok := wordPatterns.Load(word); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(^|[\s,;:/()\-])` + regexp.QuoteMeta(word) + `($|[\s,;:/()\-.!])`)
	actual, _ := wordPatterns.LoadOrStore(word, re)
	return actual.(*regexp.Regexp)
}
