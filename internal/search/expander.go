package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QueryExpander widens a query with vault-vocabulary synonyms and casing
// variants before it reaches the lexical index. Vector search always uses
// the original query, so expansion can only add lexical recall, not distort
// the semantic side.
type QueryExpander struct {
	synonyms      map[string][]string
	maxExpansions int
	casingVariant bool
}

// ExpanderOption configures the query expander.
type ExpanderOption func(*QueryExpander)

// WithMaxExpansions caps the synonyms added per query term.
func WithMaxExpansions(n int) ExpanderOption {
	return func(e *QueryExpander) {
		e.maxExpansions = n
	}
}

// WithCasingVariants toggles camel/Pascal-case variant expansion.
func WithCasingVariants(enabled bool) ExpanderOption {
	return func(e *QueryExpander) {
		e.casingVariant = enabled
	}
}

// WithSynonyms overlays custom synonym mappings onto the defaults.
func WithSynonyms(extra map[string][]string) ExpanderOption {
	return func(e *QueryExpander) {
		for k, v := range extra {
			e.synonyms[k] = append(e.synonyms[k], v...)
		}
	}
}

// NewQueryExpander creates an expander seeded with VaultSynonyms.
func NewQueryExpander(opts ...ExpanderOption) *QueryExpander {
	e := &QueryExpander{
		synonyms:      make(map[string][]string, len(VaultSynonyms)),
		maxExpansions: 3,
		casingVariant: true,
	}
	for k, v := range VaultSynonyms {
		e.synonyms[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the query with synonyms and casing variants appended.
// Original terms always come first so exact matches keep their weight.
func (e *QueryExpander) Expand(query string) string {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return query
	}

	seen := make(map[string]bool, len(terms)*2)
	expanded := make([]string, 0, len(terms)*2)

	add := func(term string) {
		key := strings.ToLower(term)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		expanded = append(expanded, term)
	}

	for _, term := range terms {
		add(term)
	}

	for _, term := range terms {
		added := 0
		for _, syn := range e.synonyms[strings.ToLower(term)] {
			if added >= e.maxExpansions {
				break
			}
			before := len(expanded)
			add(syn)
			if len(expanded) > before {
				added++
			}
		}
	}

	if e.casingVariant {
		for _, term := range terms {
			for _, v := range casingVariants(term) {
				add(v)
			}
		}
	}

	return strings.Join(expanded, " ")
}

// tokenizeQuery splits a query on whitespace and punctuation, then on
// camelCase and snake_case boundaries.
func tokenizeQuery(query string) []string {
	var words []string
	var current strings.Builder
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	var terms []string
	for _, w := range words {
		terms = append(terms, splitIdentifier(w)...)
	}
	return terms
}

// splitIdentifier breaks a token on snake_case and camelCase boundaries.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, p := range strings.Split(token, "_") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return parts
	}

	var parts []string
	var current strings.Builder
	for i, r := range token {
		if i > 0 && unicode.IsUpper(r) && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// casingVariants returns lowercase and Title variants differing from the
// original term.
func casingVariants(term string) []string {
	if term == "" {
		return nil
	}
	var variants []string
	lower := strings.ToLower(term)
	if term != lower {
		variants = append(variants, lower)
	}
	if title := titleCase(lower); term != title {
		variants = append(variants, title)
	}
	return variants
}

func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
