// Package moderation provides the profanity predicate applied to chat text
// before it is broadcast.
package moderation

import (
	"strings"
	"unicode"
)

// Filter reports whether text should be rejected. The session layer only
// depends on this signature, so tests can inject fakes.
type Filter func(text string) bool

// defaultWords is the built-in block list. Matching is case-insensitive
// and on whole words only, so "classic" never trips on "ass".
var defaultWords = []string{
	"arse",
	"ass",
	"asshole",
	"bastard",
	"bitch",
	"bollocks",
	"crap",
	"cunt",
	"dick",
	"fuck",
	"piss",
	"prick",
	"shit",
	"slut",
	"twat",
	"wanker",
}

// Default returns a filter backed by the built-in word list.
func Default() Filter {
	return WordList(defaultWords...)
}

// None returns a filter that rejects nothing.
func None() Filter {
	return func(string) bool { return false }
}

// WordList returns a filter that flags text containing any of the given
// words, compared case-insensitively on word boundaries.
func WordList(words ...string) Filter {
	blocked := make(map[string]struct{}, len(words))
	for _, w := range words {
		blocked[strings.ToLower(w)] = struct{}{}
	}
	return func(text string) bool {
		fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, f := range fields {
			if _, ok := blocked[f]; ok {
				return true
			}
		}
		return false
	}
}
