// Package normalize canonicalizes free-text wizard input to the values the remote store
// expects and reconciles the different field spellings the store uses for one concept.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLocales are the wizard's locales, primary first.
var DefaultLocales = []language.Tag{language.German, language.English, language.Turkish}

// storeNames are the names the remote store uses where they differ from the English CLDR name.
var storeNames = map[string]string{
	"TR": "Turkey",
	"US": "United States",
	"MM": "Myanmar",
}

var aliases = map[string]string{
	"Republic of Turkey":          "TR",
	"Turkiye":                     "TR",
	"Federal Republic of Germany": "DE",
	"United States of America":    "US",
	"USA":                         "US",
	"UK":                          "GB",
}

// CountryNormalizer maps a country as typed in any supported locale to the store's canonical
// English name.
type CountryNormalizer struct {
	index     map[string]string
	ambiguous map[string]bool
	names     map[string]string
}

// NewCountryNormalizer indexes every ISO country by its code and by its name in each locale.
// With no locales, DefaultLocales are used.
func NewCountryNormalizer(locales ...language.Tag) *CountryNormalizer {
	if len(locales) == 0 {
		locales = DefaultLocales
	}
	n := &CountryNormalizer{
		index:     map[string]string{},
		ambiguous: map[string]bool{},
		names:     map[string]string{},
	}
	english := display.English.Regions()
	namers := make([]display.Namer, 0, len(locales))
	for _, tag := range locales {
		namers = append(namers, display.Regions(tag))
	}

	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			region, err := language.ParseRegion(string([]rune{a, b}))
			// Deprecated codes (DD, FX, UK, ...) share their names with the current region.
			if err != nil || !region.IsCountry() || region.Canonicalize() != region {
				continue
			}
			code := region.String()
			if _, done := n.names[code]; done {
				continue
			}
			canonical := storeNames[code]
			if canonical == "" {
				canonical = english.Name(region)
			}
			if canonical == "" {
				continue
			}
			n.names[code] = canonical
			n.add(code, code)
			n.add(canonical, code)
			for _, namer := range namers {
				n.add(namer.Name(region), code)
			}
		}
	}
	for alias, code := range aliases {
		n.add(alias, code)
	}
	return n
}

func (n *CountryNormalizer) add(name, code string) {
	key := fold(name)
	if key == "" {
		return
	}
	if existing, ok := n.index[key]; ok && existing != code {
		if n.names[existing] != n.names[code] {
			n.ambiguous[key] = true
		}
		return
	}
	n.index[key] = code
}

// Normalize returns the canonical name for a recognized country. Ambiguous and unrecognized
// input is returned unchanged.
func (n *CountryNormalizer) Normalize(input string) string {
	key := fold(input)
	if key == "" || n.ambiguous[key] {
		return input
	}
	code, ok := n.index[key]
	if !ok {
		return input
	}
	return n.names[code]
}

// Code returns the ISO 3166 alpha-2 code of a recognized country.
func (n *CountryNormalizer) Code(input string) (string, bool) {
	key := fold(input)
	if key == "" || n.ambiguous[key] {
		return "", false
	}
	code, ok := n.index[key]
	return code, ok
}

// fold makes lookups insensitive to case, surrounding and repeated whitespace and diacritics.
func fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
