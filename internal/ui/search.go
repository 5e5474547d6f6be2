package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vaultrank/vaultrank/internal/search"
)

// snippetLines is the number of content lines shown per result.
const snippetLines = 3

// SearchRenderer renders search responses for the terminal.
type SearchRenderer struct {
	out    io.Writer
	styles Styles
}

// NewSearchRenderer creates a search result renderer.
func NewSearchRenderer(out io.Writer, noColor bool) *SearchRenderer {
	return &SearchRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes the response as styled text. When showScores is set,
// each result includes its per-channel score breakdown.
func (r *SearchRenderer) Render(resp *search.Response, showScores bool) {
	if len(resp.Results) == 0 {
		fmt.Fprintf(r.out, "No results for %q\n", resp.Query)
		fmt.Fprintln(r.out, r.styles.Dim.Render("  try broader terms, or check the index with 'vaultrank status'"))
		return
	}

	header := fmt.Sprintf("Found %d %s for %q",
		len(resp.Results), pluralize("result", len(resp.Results)), resp.Query)
	meta := fmt.Sprintf("(%s, %s)", strings.ToLower(string(resp.QueryType)), formatTook(resp.Took))
	fmt.Fprintf(r.out, "%s %s\n", r.styles.Header.Render(header), r.styles.Dim.Render(meta))

	if resp.ColdStart {
		fmt.Fprintln(r.out, r.styles.Warning.Render("  keyword coverage was sparse; ranking leans on semantic similarity"))
	}
	fmt.Fprintln(r.out)

	for i, c := range resp.Results {
		fmt.Fprintf(r.out, "%d. %s %s\n",
			i+1,
			r.styles.Path.Render(c.Path),
			r.styles.Score.Render(fmt.Sprintf("%.2f", c.FinalScore)))

		if c.Title != "" {
			fmt.Fprintf(r.out, "   %s\n", r.styles.Title.Render(c.Title))
		}

		for _, line := range snippet(c.Content, snippetLines) {
			fmt.Fprintf(r.out, "   %s\n", r.styles.Dim.Render(line))
		}

		if len(c.MatchedTerms) > 0 {
			fmt.Fprintf(r.out, "   %s %s\n",
				r.styles.Label.Render("matched"),
				r.styles.Dim.Render(strings.Join(c.MatchedTerms, ", ")))
		}

		if showScores {
			breakdown := fmt.Sprintf("path %.2f  short %.2f  title %.2f  body %.2f  vector %.2f  prior %.2f",
				c.Channels.Path, c.Channels.Short, c.Channels.Title,
				c.Channels.Body, c.Channels.Vector, c.PriorScore)
			fmt.Fprintf(r.out, "   %s %s\n", r.styles.Label.Render("scores"), r.styles.Dim.Render(breakdown))
		}

		fmt.Fprintln(r.out)
	}
}

// searchJSON is the machine-readable response shape.
type searchJSON struct {
	Query     string             `json:"query"`
	QueryType string             `json:"query_type"`
	ColdStart bool               `json:"cold_start,omitempty"`
	TookMS    int64              `json:"took_ms"`
	Results   []searchResultJSON `json:"results"`
}

type searchResultJSON struct {
	Rank     int                 `json:"rank"`
	Path     string              `json:"path"`
	Title    string              `json:"title,omitempty"`
	Type     string              `json:"type"`
	Score    float64             `json:"score"`
	Snippet  string              `json:"snippet,omitempty"`
	Matched  []string            `json:"matched,omitempty"`
	Channels *searchChannelsJSON `json:"channels,omitempty"`
}

type searchChannelsJSON struct {
	Path   float64 `json:"path"`
	Short  float64 `json:"short"`
	Title  float64 `json:"title"`
	Body   float64 `json:"body"`
	Vector float64 `json:"vector"`
	Prior  float64 `json:"prior"`
}

// RenderJSON writes the response as indented JSON.
func (r *SearchRenderer) RenderJSON(resp *search.Response, showScores bool) error {
	out := searchJSON{
		Query:     resp.Query,
		QueryType: string(resp.QueryType),
		ColdStart: resp.ColdStart,
		TookMS:    resp.Took.Milliseconds(),
		Results:   make([]searchResultJSON, 0, len(resp.Results)),
	}

	for i, c := range resp.Results {
		res := searchResultJSON{
			Rank:    i + 1,
			Path:    c.Path,
			Title:   c.Title,
			Type:    c.ContentType,
			Score:   c.FinalScore,
			Snippet: strings.Join(snippet(c.Content, snippetLines), "\n"),
			Matched: c.MatchedTerms,
		}
		if showScores {
			res.Channels = &searchChannelsJSON{
				Path:   c.Channels.Path,
				Short:  c.Channels.Short,
				Title:  c.Channels.Title,
				Body:   c.Channels.Body,
				Vector: c.Channels.Vector,
				Prior:  c.PriorScore,
			}
		}
		out.Results = append(out.Results, res)
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// snippet returns up to maxLines non-blank content lines, each capped
// at terminal width.
func snippet(content string, maxLines int) []string {
	const lineMax = 120

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > lineMax {
			line = string(runes[:lineMax]) + "..."
		}
		lines = append(lines, line)
		if len(lines) == maxLines {
			break
		}
	}
	return lines
}

func formatTook(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
