// Package tokenizer turns post text into the terms used by the semantic
// index. It lower-cases input, splits on non-alphanumeric boundaries,
// removes short tokens and stop-words, and applies an ordered suffix
// stemmer.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "it": {}, "as": {}, "be": {}, "this": {}, "that": {}, "from": {},
	"was": {}, "are": {}, "were": {}, "been": {}, "has": {}, "have": {},
	"had": {}, "not": {}, "no": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "i": {}, "we": {}, "you": {}, "he": {}, "she": {}, "they": {},
	"my": {}, "your": {}, "how": {}, "what": {}, "why": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "its": {}, "their": {}, "our": {},
	"his": {}, "her": {}, "them": {}, "us": {}, "me": {}, "than": {},
	"then": {}, "so": {}, "if": {}, "about": {}, "up": {}, "out": {},
	"just": {}, "also": {}, "more": {}, "some": {}, "any": {}, "all": {},
	"each": {}, "every": {}, "into": {}, "over": {}, "after": {},
	"before": {}, "between": {}, "through": {}, "during": {}, "very": {},
	"most": {}, "other": {}, "such": {}, "only": {}, "same": {}, "own": {},
	"both": {}, "being": {}, "here": {}, "there": {}, "these": {},
	"those": {}, "while": {}, "because": {},
}

// IsStopWord reports whether the lower-cased word is excluded from indexing.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Tokenize breaks text into lower-cased tokens with stop-words and tokens
// shorter than two bytes removed. Order and duplicates are preserved.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Analyze tokenizes text and stems every token.
func Analyze(text string) []string {
	tokens := Tokenize(text)
	for i, token := range tokens {
		tokens[i] = Stem(token)
	}
	return tokens
}
