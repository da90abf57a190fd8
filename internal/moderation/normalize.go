// Package moderation normalizes chat text and matches it against a
// compiled denylist. Pure functions, no state.
package moderation

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds text to a canonical matchable form: NFKC
// compatibility fold (full-width variants become ASCII), lowercase,
// invisible formatting code points removed, and separator runes sitting
// between letters or digits dropped so a term split by spaces, hyphens or
// zero-width characters still compares equal to its plain spelling.
func NormalizeText(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(folded))
	var pending []rune
	emitted := false
	for _, r := range folded {
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !emitted {
				for _, p := range pending {
					b.WriteRune(p)
				}
			}
			pending = pending[:0]
			b.WriteRune(r)
			emitted = true
			continue
		}
		pending = append(pending, r)
	}
	for _, p := range pending {
		b.WriteRune(p)
	}
	return strings.TrimSpace(b.String())
}
