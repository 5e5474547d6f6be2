package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults renders search output as markdown for text-oriented
// clients.
func FormatSearchResults(query string, out SearchVaultOutput) string {
	if len(out.Results) == 0 {
		if out.Notice != "" {
			return fmt.Sprintf("No results found for %q. %s.", query, out.Notice)
		}
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (query type: %s)\n\n", out.QueryType)

	if out.Notice != "" {
		fmt.Fprintf(&sb, "%s.\n\n", out.Notice)
	}
	if out.ColdStart {
		sb.WriteString("Keyword coverage was sparse for this query; semantic matches were weighted up.\n\n")
	}

	for i, r := range out.Results {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// formatResult renders a single result. Prose chunks are emitted as-is
// since vault notes are already markdown; code chunks get a fenced block.
func formatResult(sb *strings.Builder, num int, r ResultOutput) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, r.Path, r.Score)
	if r.Title != "" {
		fmt.Fprintf(sb, "**Section:** %s\n", r.Title)
	}
	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		fmt.Fprintf(sb, "**Matched:** %s\n", strings.Join(terms, ", "))
	}
	sb.WriteString("\n")

	if r.ContentType == "code" {
		fmt.Fprintf(sb, "```\n%s\n```\n\n", strings.TrimRight(r.Content, "\n"))
	} else {
		sb.WriteString(strings.TrimRight(r.Content, "\n"))
		sb.WriteString("\n\n---\n\n")
	}
}

// clampLimit resolves a requested limit against bounds, falling back to
// defaultVal when unset.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
