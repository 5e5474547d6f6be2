package search

import (
	"path/filepath"
	"strings"
)

// FilterFunc reports whether a candidate passes one filter criterion.
type FilterFunc func(c *Candidate) bool

// ApplyFilters drops candidates failing any of the filters derived from
// the options. Filters combine with AND logic.
func ApplyFilters(results []*Candidate, opts SearchOptions) []*Candidate {
	filters := buildFilters(opts)
	if len(filters) == 0 {
		return results
	}

	filtered := make([]*Candidate, 0, len(results))
	for _, c := range results {
		if matchesAll(c, filters) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func buildFilters(opts SearchOptions) []FilterFunc {
	var filters []FilterFunc
	if len(opts.Scopes) > 0 {
		filters = append(filters, scopeFilter(opts.Scopes))
	}
	if len(opts.Types) > 0 {
		filters = append(filters, typeFilter(opts.Types))
	}
	return filters
}

func matchesAll(c *Candidate, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(c) {
			return false
		}
	}
	return true
}

// scopeFilter keeps candidates whose path sits under any scope prefix.
// Scopes use OR logic.
func scopeFilter(scopes []string) FilterFunc {
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSuffix(filepath.ToSlash(strings.TrimSpace(s)), "/")
		if s != "" {
			normalized = append(normalized, strings.ToLower(s))
		}
	}

	return func(c *Candidate) bool {
		if len(normalized) == 0 {
			return true
		}
		path := strings.ToLower(filepath.ToSlash(c.Path))
		for _, scope := range normalized {
			if path == scope || strings.HasPrefix(path, scope+"/") {
				return true
			}
		}
		return false
	}
}

// typeFilter keeps candidates whose content type is in the allowed set.
// Candidates without a known type always pass.
func typeFilter(types []string) FilterFunc {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			allowed[t] = true
		}
	}

	return func(c *Candidate) bool {
		if len(allowed) == 0 {
			return true
		}
		if c.ContentType == "" {
			return true
		}
		return allowed[strings.ToLower(c.ContentType)]
	}
}
