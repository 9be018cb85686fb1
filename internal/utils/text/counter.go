// Package text holds rune-aware helpers for the text sent to the embedding
// provider.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CountRunes counts Unicode characters rather than bytes:
//
//	CountRunes("hello")    // 5
//	CountRunes("日本語")    // 3
//	CountRunes("Hello👋")  // 6
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate shortens text to at most maxRunes characters. A cut inside a word
// backs up to the previous whitespace as long as at least half of the kept
// text survives; otherwise the word is cut. maxRunes <= 0 returns text
// unchanged.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || CountRunes(text) <= maxRunes {
		return text
	}

	cut := 0
	for i := range text {
		if maxRunes == 0 {
			cut = i
			break
		}
		maxRunes--
	}
	head := text[:cut]

	if next, _ := utf8.DecodeRuneInString(text[cut:]); !unicode.IsSpace(next) {
		if idx := strings.LastIndexFunc(head, unicode.IsSpace); idx > 0 && idx >= len(head)/2 {
			head = head[:idx]
		}
	}
	return strings.TrimRightFunc(head, unicode.IsSpace)
}
