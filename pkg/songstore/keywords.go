package songstore

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSearchTokens is the largest disjunction Firestore accepts for
// array-contains-any.
const maxSearchTokens = 30

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "by": {}, "for": {}, "from": {},
	"in": {}, "is": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "with": {},
}

// Keywords returns the search tokens indexed for a song.
func Keywords(artist, title string) []string {
	return tokenize(artist + " " + title)
}

// SearchTokens splits a search term into the tokens matched against the
// keyword index. Any token matching is enough for a song to be returned.
func SearchTokens(term string) []string {
	tokens := tokenize(term)
	if len(tokens) > maxSearchTokens {
		tokens = tokens[:maxSearchTokens]
	}
	return tokens
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// fold lower-cases and strips diacritics so "Beyoncé" and "beyonce" index
// to the same token.
func fold(s string) string {
	// A Chain carries state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
