package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Collapse trims s and reduces every run of whitespace to one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold returns the case-folded, whitespace-collapsed form of s. It is the
// comparison key for funder and instrument names.
func Fold(s string) string {
	return cases.Fold().String(Collapse(s))
}

// TitleKey reduces a title to lower-case ASCII-ish words: accents are
// stripped, punctuation becomes a space, whitespace is collapsed.
// "Quantum-Sensing  Réseau" and "quantum sensing reseau" share a key.
func TitleKey(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ProjectKey strips source-specific prefixes from an external project
// identifier: the last segment after '_', ':' or '/', upper-cased, with
// anything but letters and digits removed. "H2020_101017733",
// "corda__h2020::101017733" and "101017733" share a key.
func ProjectKey(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "_:/"); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Keywords trims, drops empties and removes case-insensitive duplicates,
// keeping first occurrences in order.
func Keywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = Collapse(k)
		if k == "" {
			continue
		}
		key := Fold(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
