// Package trigram computes string similarity with the same trigram model as
// PostgreSQL's pg_trgm extension, so that an embedded database can answer the
// same fuzzy search predicate as a Postgres server.
package trigram

import (
	"strings"
	"unicode"
)

// Set returns the unique trigrams of s. The string is lower-cased and split
// into alphanumeric words; every word is padded with two leading blanks and
// one trailing blank before its trigrams are taken.
func Set(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range words(strings.ToLower(s)) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity returns the number of shared trigrams divided by the number of
// distinct trigrams of both strings, in the range [0, 1].
func Similarity(a, b string) float64 {
	setA := Set(a)
	setB := Set(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}

	return float64(common) / float64(len(setA)+len(setB)-common)
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
