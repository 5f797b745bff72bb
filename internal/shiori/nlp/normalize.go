// Package nlp holds the language-side helpers of the turn orchestrator:
// message normalisation, reference resolution, the keyword lexicon and
// request-type ladder, and the model-backed intent and entity extractor.
package nlp

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, turns every rune that is not a letter or a digit
// into a space and collapses runs of whitespace. Accents are kept.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
