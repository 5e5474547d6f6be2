package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/ui"
	"github.com/vaultrank/vaultrank/internal/watcher"
)

func newIngestCmd() *cobra.Command {
	var (
		plain    bool
		rebuild  bool
		watch    bool
		embedder string
	)

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest a vault into the search index",
		Long: `Ingest a vault to enable hybrid search over its notes.

This scans Markdown files, splits them into heading-aligned chunks,
generates embeddings, and builds the lexical and vector indexes.

Use --rebuild to clear existing index data and start from scratch.
Use --watch to keep running and re-ingest when notes change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the context so in-flight embedding stops.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			// The factory reads the env override, so all downstream
			// code respects the choice.
			if embedder != "" {
				os.Setenv(embed.EnvEmbedder, embedder)
			}

			return runIngestAt(ctx, cmd.OutOrStdout(), path, ingestOptions{
				rebuild: rebuild,
				plain:   plain,
				watch:   watch,
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the progress bar, use plain line output")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest on vault changes")
	cmd.Flags().StringVar(&embedder, "embedder", "", "Embedding provider: auto (default), ollama, or static")

	return cmd
}

// ingestOptions alter one runIngestAt call.
type ingestOptions struct {
	rebuild bool
	offline bool
	plain   bool
	watch   bool
}

// runIngestAt runs a full ingest for the vault containing path. The
// smart default calls it with io.Discard to keep stdout clean for MCP.
func runIngestAt(ctx context.Context, out io.Writer, path string, opts ingestOptions) error {
	cleanup := setupFileLogging()
	defer cleanup()

	env, err := resolveVault(path)
	if err != nil {
		return err
	}

	if opts.rebuild {
		if err := clearIndexData(env.dataDir); err != nil {
			return fmt.Errorf("clear index data: %w", err)
		}
		_, _ = fmt.Fprintln(out, "Cleared existing index, rebuilding from scratch...")
		slog.Info("index cleared for rebuild", slog.String("data_dir", env.dataDir))
	}

	if err := os.MkdirAll(env.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithVaultDir(env.root)))
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	// Check context before the potentially blocking embedder probe.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: "Connecting to embedder...",
	})

	stack, err := openStack(ctx, env, opts.offline)
	if err != nil {
		return err
	}
	defer closeStack(stack)

	pipeline, err := stack.NewPipeline()
	if err != nil {
		return fmt.Errorf("build ingest pipeline: %w", err)
	}

	report, err := pipeline.Run(ctx, ingest.RunOptions{
		Rebuild: opts.rebuild,
		Progress: func(done, total int, file string) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     done,
				Total:       total,
				CurrentFile: file,
			})
		},
	})
	if err != nil {
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Files:    report.FilesIndexed,
		Chunks:   report.ChunksIndexed,
		Skipped:  report.FilesSkipped,
		Pruned:   report.DocsPruned,
		Duration: report.Took,
		Errors:   report.FilesFailed,
		Embedder: embedderInfo(stack.Embedder()),
	})

	if opts.watch {
		return watchVault(ctx, out, env, pipeline)
	}
	return nil
}

// embedderInfo describes the embedder for the completion summary.
func embedderInfo(e embed.Embedder) ui.EmbedderInfo {
	info := ui.EmbedderInfo{
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
		Backend:    "ollama",
	}
	if e.ModelName() == string(embed.ProviderStatic) {
		info.Backend = "static"
	}
	return info
}

// clearIndexData removes index files from the data directory, leaving
// config, logs, and the check suite in place.
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"), // SQLite WAL shared memory
		filepath.Join(dataDir, "metadata.db-wal"), // SQLite WAL journal
		filepath.Join(dataDir, "lexical.db"),
		filepath.Join(dataDir, "lexical.db-shm"),
		filepath.Join(dataDir, "lexical.db-wal"),
		filepath.Join(dataDir, "lexical.bleve"), // Bleve backend directory
		filepath.Join(dataDir, "vectors.hnsw"),
	}

	for _, path := range indexFiles {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

// watchVault re-runs the pipeline whenever the watcher reports a batch
// of changes. Blocks until ctx is cancelled.
func watchVault(ctx context.Context, out io.Writer, env vaultEnv, pipeline *ingest.Pipeline) error {
	w := watcher.NewVaultWatcher(watcher.Options{
		Include: env.cfg.Vault.Include,
		Exclude: env.cfg.Vault.Exclude,
		DataDir: env.cfg.Storage.DataDir,
	}, slog.Default())

	if err := w.Start(ctx, env.root); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	_, _ = fmt.Fprintf(out, "Watching %s for changes (%s mode). Ctrl+C to stop.\n", env.root, w.Mode())

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Info("vault changed", slog.Int("events", len(batch)))

			// Incremental by content hash: unchanged files are skipped.
			report, err := pipeline.Run(ctx, ingest.RunOptions{})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("re-ingest failed", slog.String("error", err.Error()))
				_, _ = fmt.Fprintf(out, "re-ingest failed: %v\n", err)
				continue
			}
			_, _ = fmt.Fprintf(out, "Re-ingested %d note(s), %d chunk(s) in %s\n",
				report.FilesIndexed, report.ChunksIndexed, report.Took.Round(time.Millisecond))
		}
	}
}
