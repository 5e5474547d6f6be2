package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics and telemetry",
		Long:  `Inspect recorded query patterns, latency, and usage of the local index.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Report the query-type distribution (general, navigational, topical,
temporal), the most frequent query terms, recent queries that returned
nothing, and the latency histogram.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd.Context(), cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Summary             StatsQueriesSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []StatsTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// StatsQueriesSummary provides overview statistics.
type StatsQueriesSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	if !indexExists(env.dataDir) {
		return fmt.Errorf("no index found in %s\nRun 'vaultrank ingest' to create one", env.root)
	}

	// Telemetry tables live in the metadata database.
	metadata, err := store.NewSQLiteStore(filepath.Join(env.dataDir, "metadata.db"))
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	metricsStore, err := telemetry.NewSQLiteMetricsStore(metadata.DB())
	if err != nil {
		return fmt.Errorf("open metrics store: %w", err)
	}

	output, err := getQueryStats(ctx, metricsStore, days)
	if err != nil {
		return fmt.Errorf("get query stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	printStatsFormatted(cmd.OutOrStdout(), output, days)
	return nil
}

// statsWindow converts a day count into an inclusive date range ending
// today, formatted the way the telemetry tables key their rows.
func statsWindow(days int) (from, to string) {
	if days < 1 {
		days = 1
	}
	end := time.Now()
	start := end.AddDate(0, 0, 1-days)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

func getQueryStats(_ context.Context, ms *telemetry.SQLiteMetricsStore, days int) (*StatsQueriesOutput, error) {
	fromDate, toDate := statsWindow(days)

	typeCounts, err := ms.GetQueryTypeCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get query type counts: %w", err)
	}
	topTerms, err := ms.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}
	zeroResults, err := ms.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}
	latencyCounts, err := ms.GetLatencyCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	out := &StatsQueriesOutput{
		QueryTypeCounts:     typeCounts,
		TopTerms:            make([]StatsTermCount, 0, len(topTerms)),
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: make(map[string]int64, len(latencyCounts)),
	}
	for _, tc := range topTerms {
		out.TopTerms = append(out.TopTerms, StatsTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, n := range latencyCounts {
		out.LatencyDistribution[string(bucket)] = n
	}

	for _, n := range typeCounts {
		out.Summary.TotalQueries += n
	}
	if out.Summary.TotalQueries > 0 {
		out.Summary.ZeroResultPct = float64(len(zeroResults)) / float64(out.Summary.TotalQueries) * 100
	}

	return out, nil
}

// statsSection prints a titled block followed by a blank line. When
// items produces no lines, the empty placeholder is shown instead.
func statsSection(w io.Writer, title, empty string, lines []string) {
	if len(lines) == 0 {
		if empty != "" {
			fmt.Fprintf(w, "%s: %s\n\n", title, empty)
		}
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)
}

func printStatsFormatted(w io.Writer, output *StatsQueriesOutput, days int) {
	fmt.Fprintf(w, "Query Statistics\n================\nWindow: last %d day(s)\n\n", days)
	fmt.Fprintf(w, "Total Queries: %d\n", output.Summary.TotalQueries)
	fmt.Fprintf(w, "Zero Results:  %.1f%%\n\n", output.Summary.ZeroResultPct)

	var types []string
	for qt, n := range output.QueryTypeCounts {
		types = append(types, fmt.Sprintf("%s: %d", qt, n))
	}
	statsSection(w, "Query Type Distribution", "", types)

	var terms []string
	for i, tc := range output.TopTerms {
		terms = append(terms, fmt.Sprintf("%d. %s (%d)", i+1, tc.Term, tc.Count))
	}
	statsSection(w, "Top Query Terms", "(none recorded yet)", terms)

	var zeros []string
	for _, q := range output.ZeroResultQueries {
		zeros = append(zeros, fmt.Sprintf("- %q", q))
	}
	statsSection(w, "Recent Zero-Result Queries", "(none)", zeros)

	var latencies []string
	for _, b := range telemetry.LatencyBuckets() {
		if n, ok := output.LatencyDistribution[string(b)]; ok {
			latencies = append(latencies, fmt.Sprintf("%s: %d", string(b), n))
		}
	}
	statsSection(w, "Latency Distribution", "", latencies)
}
