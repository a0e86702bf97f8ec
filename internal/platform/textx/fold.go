// Package textx holds accent-insensitive text matching used by search boxes.
package textx

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics. Vietnamese đ/Đ has no decomposition
// and is mapped to d explicitly.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
	return strings.ToLower(strings.TrimSpace(out))
}

// Tokens splits a query into folded, non-empty terms.
func Tokens(query string) []string {
	return strings.Fields(Fold(query))
}

// MatchAll reports whether every token occurs in at least one field.
// An empty token list matches.
func MatchAll(tokens []string, fields ...string) bool {
	if len(tokens) == 0 {
		return true
	}
	folded := make([]string, len(fields))
	for i, f := range fields {
		folded[i] = Fold(f)
	}
	for _, tok := range tokens {
		found := false
		for _, f := range folded {
			if strings.Contains(f, tok) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
