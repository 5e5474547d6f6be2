package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/mcp"
	"github.com/vaultrank/vaultrank/internal/validation"
)

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the vault's retrieval check suite",
		Long: `Run the golden, recall, and smoke queries from the vault's check
suite against the live index and report pass/fail per query.

Golden and smoke failures fail the command; recall misses are advisory.
Use --init to write a starter suite to <data-dir>/checks.yaml, then
fill in queries that matter for your vault.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.initSuite, "init", false, "Write a starter check suite and exit")
	cmd.Flags().StringVar(&opts.suitePath, "suite", "", "Check suite path (default <data-dir>/checks.yaml)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Results fetched per query")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings for the run")

	return cmd
}

type checkOptions struct {
	initSuite bool
	suitePath string
	limit     int
	jsonOut   bool
	offline   bool
}

func runCheck(ctx context.Context, out io.Writer, opts checkOptions) error {
	cleanup := setupFileLogging()
	defer cleanup()

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	suitePath := opts.suitePath
	if suitePath == "" {
		suitePath = validation.DefaultSuitePath(env.dataDir)
	}

	if opts.initSuite {
		return writeStarterSuite(out, suitePath)
	}

	if !indexExists(env.dataDir) {
		return fmt.Errorf("no index found. Run 'vaultrank ingest' first")
	}

	suite, err := validation.LoadSuite(suitePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no check suite at %s\nRun 'vaultrank check --init' to create one", suitePath)
		}
		return err
	}

	stack, err := openStack(ctx, env, opts.offline)
	if err != nil {
		return err
	}
	defer closeStack(stack)

	// Checks go through the MCP tool surface so they exercise the same
	// path clients use, parsing included.
	server, err := mcp.NewServer(stack.Engine(), stack.Meta(), stack.Embedder(), env.cfg, env.root)
	if err != nil {
		return fmt.Errorf("build MCP server: %w", err)
	}

	vopts := []validation.Option{validation.WithEmbedderName(stack.Embedder().ModelName())}
	if opts.limit > 0 {
		vopts = append(vopts, validation.WithLimit(opts.limit))
	}
	validator := validation.NewValidator(server, vopts...)

	report := validator.Run(ctx, suite)

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printCheckReport(out, report)
	}

	if !report.Ok() {
		return fmt.Errorf("check suite failed")
	}
	return nil
}

// writeStarterSuite writes the commented starter suite, refusing to
// clobber an existing one.
func writeStarterSuite(out io.Writer, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("check suite already exists at %s", path)
	}
	// The data dir may not exist yet when --init runs before the first
	// ingest.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create suite directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(validation.StarterSuite), 0o644); err != nil {
		return fmt.Errorf("write check suite: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Wrote starter check suite to %s\n", path)
	_, _ = fmt.Fprintln(out, "Edit it to add golden queries for your vault, then run 'vaultrank check'.")
	return nil
}

func printCheckReport(w io.Writer, report *validation.Report) {
	_, _ = fmt.Fprintf(w, "Check run (%s embedder)\n", report.Embedder)

	groups := []validation.Group{validation.GroupGolden, validation.GroupRecall, validation.GroupSmoke}
	for _, g := range groups {
		passed, total := report.Counts(g)
		if total == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %-7s %d/%d passed\n", string(g)+":", passed, total)
	}

	failed := report.Failed()
	if len(failed) == 0 {
		_, _ = fmt.Fprintln(w, "All checks passed.")
		return
	}

	_, _ = fmt.Fprintln(w)
	for _, r := range failed {
		marker := "FAIL"
		if r.Spec.Group == validation.GroupRecall {
			marker = "MISS" // advisory
		}
		_, _ = fmt.Fprintf(w, "[%s] %s %q\n", marker, r.Spec.ID, r.Spec.Query)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "       error: %s\n", r.Error)
			continue
		}
		_, _ = fmt.Fprintf(w, "       wanted one of %v in top %d\n", r.Spec.Expected, len(r.Paths))
		for i, p := range r.Paths {
			if i >= 3 {
				break
			}
			_, _ = fmt.Fprintf(w, "       got %d. %s\n", i+1, p)
		}
	}
}
