package retrieval

import (
	"strings"
	"unicode"
)

// stopWords are dropped before keyword matching. Besides common English
// function words this covers the question filler users put around a topic.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "or": {}, "in": {}, "that": {}, "have": {},
	"it": {}, "for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {},
	"do": {}, "does": {}, "at": {}, "this": {}, "but": {}, "by": {}, "from": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "how": {}, "about": {},
	"tell": {}, "me": {}, "i": {}, "my": {}, "can": {}, "there": {},
}

// tokenizeAndFilter lowercases text, splits it on anything that is not a
// letter or digit and removes stop words.
func tokenizeAndFilter(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	filtered := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// containsAllQueryWords reports whether every keyword of query occurs in document.
// A query with no keywords never matches.
func containsAllQueryWords(document, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := make(map[string]struct{})
	for _, w := range tokenizeAndFilter(document) {
		docWords[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := docWords[w]; !ok {
			return false
		}
	}
	return true
}
