package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/async"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/preflight"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		offline    bool
		repair     bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check whether this host can run vaultrank",
		Long: `Run the pre-flight system checks: disk space, memory, write
permissions, file descriptor limits, and embedder reachability. When an
index exists, the stores are also diffed against each other for drift.

The zero-argument 'vaultrank' flow runs the same checks once and caches
the result. Doctor always runs them fresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, offline, repair)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the embedder check")
	cmd.Flags().BoolVar(&repair, "repair", false, "Delete orphaned index entries found by the consistency check")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ = cmd.Flags().GetBool("json")
		return nil
	}

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline, repair bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	// Build the embedder so the check reports the real provider state.
	// Probe failures leave it nil; the check then degrades to a warning.
	var embedder embed.Embedder
	if !offline {
		probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
		if e, err := searcher.NewEmbedder(probeCtx, env.cfg, false, 0); err == nil {
			embedder = e
			defer func() { _ = e.Close() }()
		}
		cancel()
	}

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithEmbedder(embedder),
	)

	results := checker.RunAll(ctx, env.root)

	// Cross-store drift appears when an ingest dies between writes, so
	// the check only makes sense once an index exists.
	var (
		consistency    *store.ConsistencyReport
		repaired       bool
		consistencyErr error
	)
	if indexExists(env.dataDir) {
		consistency, repaired, consistencyErr = checkIndexConsistency(ctx, env, repair)
	}
	incompleteBuild := async.IncompleteBuild(env.dataDir)

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results, doctorIndexReport{
			consistency:     consistency,
			repaired:        repaired,
			checkErr:        consistencyErr,
			incompleteBuild: incompleteBuild,
		})
	}

	checker.PrintResults(results)
	printIndexConsistency(cmd, consistency, repaired, consistencyErr)

	if incompleteBuild {
		cmd.Println("\nA previous background ingest did not finish; the index may be partial.")
		cmd.Println("Run 'vaultrank ingest' to complete it.")
	}

	if !preflight.NeedsCheck(env.dataDir) {
		if age := preflight.MarkerAge(env.dataDir); age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", formatCheckAge(age.Hours()))
		}
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}

	return nil
}

// checkIndexConsistency diffs the stores and optionally deletes the
// orphans it finds. The stack opens on the static embedder; comparing
// ids needs no model.
func checkIndexConsistency(ctx context.Context, env vaultEnv, repair bool) (*store.ConsistencyReport, bool, error) {
	stack, err := searcher.Open(ctx, env.root, searcher.Options{Config: env.cfg, Offline: true})
	if err != nil {
		return nil, false, err
	}
	defer closeStack(stack)

	checker := store.NewConsistencyChecker(stack.Meta(), stack.Lexical(), stack.Vector())
	report, err := checker.Check(ctx)
	if err != nil {
		return nil, false, err
	}

	repaired := false
	if repair && !report.Consistent() {
		if err := checker.Repair(ctx, report.Drifts); err != nil {
			return report, false, err
		}
		repaired = true
	}
	return report, repaired, nil
}

// printIndexConsistency renders the drift report for the text output.
func printIndexConsistency(cmd *cobra.Command, report *store.ConsistencyReport, repaired bool, checkErr error) {
	if checkErr != nil {
		cmd.Printf("\nIndex consistency: check failed: %v\n", checkErr)
		return
	}
	if report == nil {
		return
	}
	if report.Consistent() {
		cmd.Printf("\nIndex consistency: %d chunks checked, no drift\n", report.Checked)
		return
	}

	cmd.Printf("\nIndex consistency: %d chunks checked, %d entries out of sync\n",
		report.Checked, len(report.Drifts))
	counts := driftCounts(report.Drifts)
	for _, kind := range driftKinds {
		if counts[kind] > 0 {
			cmd.Printf("  %s: %d\n", kind, counts[kind])
		}
	}
	if repaired {
		cmd.Println("Orphaned entries were deleted. Missing entries need 'vaultrank ingest --rebuild'.")
	} else {
		cmd.Println("Run 'vaultrank doctor --repair' to delete orphans. Missing entries need 'vaultrank ingest --rebuild'.")
	}
}

// driftKinds fixes the rendering order of drift categories.
var driftKinds = []store.DriftKind{
	store.DriftOrphanLexical,
	store.DriftOrphanVector,
	store.DriftMissingLexical,
	store.DriftMissingVector,
}

func driftCounts(drifts []store.Drift) map[store.DriftKind]int {
	counts := make(map[store.DriftKind]int)
	for _, d := range drifts {
		counts[d.Kind]++
	}
	return counts
}

// doctorError distinguishes check failures from command plumbing errors.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// doctorJSON is the machine-readable doctor report.
type doctorJSON struct {
	Status   string            `json:"status"`
	Checks   []doctorCheckJSON `json:"checks"`
	Index    *doctorIndexJSON  `json:"index,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// doctorCheckJSON is a single check result for JSON output.
type doctorCheckJSON struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

// doctorIndexJSON is the consistency check section of the JSON report.
type doctorIndexJSON struct {
	Checked    int            `json:"checked"`
	Consistent bool           `json:"consistent"`
	Drift      map[string]int `json:"drift,omitempty"`
	Repaired   bool           `json:"repaired,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// doctorIndexReport bundles the consistency outcome for rendering.
type doctorIndexReport struct {
	consistency     *store.ConsistencyReport
	repaired        bool
	checkErr        error
	incompleteBuild bool
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult, index doctorIndexReport) error {
	output := doctorJSON{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorCheckJSON, len(results)),
	}

	for i, r := range results {
		output.Checks[i] = doctorCheckJSON{
			Name:     r.Name,
			Status:   checkStatusString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			output.Errors = append(output.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			output.Warnings = append(output.Warnings, r.Name+": "+r.Message)
		}
	}

	if index.checkErr != nil {
		output.Index = &doctorIndexJSON{Error: index.checkErr.Error()}
	} else if index.consistency != nil {
		section := &doctorIndexJSON{
			Checked:    index.consistency.Checked,
			Consistent: index.consistency.Consistent(),
			Repaired:   index.repaired,
		}
		if !index.consistency.Consistent() {
			section.Drift = make(map[string]int)
			for kind, n := range driftCounts(index.consistency.Drifts) {
				section.Drift[kind.String()] = n
			}
		}
		output.Index = section
	}

	if index.incompleteBuild {
		output.Warnings = append(output.Warnings,
			"a previous background ingest did not finish; run 'vaultrank ingest' to complete it")
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func checkStatusString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// formatCheckAge renders a marker age in coarse human units.
func formatCheckAge(hours float64) string {
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		h := int(hours)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	days := int(hours / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
