package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric runs including underscores. Path
// separators, punctuation, and markdown syntax all act as delimiters.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits text into lowercased search tokens. Identifiers are
// split on camelCase and snake_case boundaries so a note mentioning
// getUserConfig is findable by "user config". Tokens shorter than
// minLength are dropped.
func Tokenize(text string, minLength int) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range SplitToken(word) {
			if len(part) >= minLength {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

// SplitToken splits snake_case first, then camelCase within each part.
func SplitToken(token string) []string {
	if !strings.Contains(token, "_") {
		return splitCamelCase(token)
	}
	var parts []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			parts = append(parts, splitCamelCase(part)...)
		}
	}
	return parts
}

// splitCamelCase cuts at camelCase and PascalCase boundaries, keeping
// acronym runs together: "parseHTTPRequest" -> parse, HTTP, Request.
// A boundary sits before an uppercase rune that follows a lowercase
// one, or that starts a new word after an acronym run.
func splitCamelCase(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return []string{}
	}

	cuts := []int{0}
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		afterLower := unicode.IsLower(runes[i-1])
		beforeLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if afterLower || beforeLower {
			cuts = append(cuts, i)
		}
	}
	cuts = append(cuts, len(runes))

	parts := make([]string, 0, len(cuts)-1)
	for i := 1; i < len(cuts); i++ {
		if cuts[i] > cuts[i-1] {
			parts = append(parts, string(runes[cuts[i-1]:cuts[i]]))
		}
	}
	return parts
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := stopWords[strings.ToLower(token)]; !stop {
			kept = append(kept, token)
		}
	}
	return kept
}

// BuildStopWordMap converts a stop word list into a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
