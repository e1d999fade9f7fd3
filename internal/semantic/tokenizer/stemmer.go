package tokenizer

import "strings"

type suffixRule struct {
	suffix      string
	replacement string
}

// suffixRules is evaluated first-match. Reordering it changes which word
// forms collapse together.
var suffixRules = []suffixRule{
	{"ational", "ate"},
	{"tional", "tion"},
	{"encies", "ence"},
	{"ancies", "ance"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"iveness", "ive"},
	{"ization", "ize"},
	{"ements", "e"},
	{"nesses", "ness"},
	{"ments", "ment"},
	{"ating", "ate"},
	{"ition", "it"},
	{"ising", "ise"},
	{"izing", "ize"},
	{"ation", "ate"},
	{"ities", "ity"},
	{"ously", "ous"},
	{"ively", "ive"},
	{"fully", "ful"},
	{"ings", ""},
	{"ment", ""},
	{"ness", ""},
	{"ting", "t"},
	{"able", ""},
	{"ible", ""},
	{"ally", "al"},
	{"ence", ""},
	{"ance", ""},
	{"ious", ""},
	{"eous", ""},
	{"ing", ""},
	{"ies", "y"},
	{"ion", ""},
	{"ful", ""},
	{"ous", ""},
	{"ive", ""},
	{"ize", ""},
	{"ise", ""},
	{"ate", ""},
	{"ity", ""},
	{"ers", ""},
	{"est", ""},
	{"ess", ""},
	{"ism", ""},
	{"ist", ""},
	{"ant", ""},
	{"ent", ""},
	{"ed", ""},
	{"er", ""},
	{"ly", ""},
	{"es", ""},
	{"al", ""},
	{"s", ""},
}

const (
	minStemLen = 4
	minBaseLen = 2
)

// Stem reduces a word to an approximate root using suffixRules. Words
// shorter than four bytes are returned unchanged.
func Stem(word string) string {
	w := strings.ToLower(word)
	if len(w) < minStemLen {
		return w
	}
	for _, rule := range suffixRules {
		if !strings.HasSuffix(w, rule.suffix) {
			continue
		}
		base := w[:len(w)-len(rule.suffix)]
		if len(base) >= minBaseLen {
			return base + rule.replacement
		}
	}
	return w
}
