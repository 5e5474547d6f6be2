package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/store"
)

func newCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact [path]",
		Short: "Compact the vector index by removing orphaned nodes",
		Long: `Rebuild the vault's vector index without its orphaned graph nodes.

Deleting or re-ingesting notes removes chunks lazily: the graph node
stays behind and only stops being returned. Compaction rebuilds the
graph from the live vectors, reclaiming the memory. No re-embedding
happens, so the command works offline.

The search daemon compacts automatically during idle time; this command
covers vaults the daemon does not serve.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runCompact(ctx, cmd.OutOrStdout(), path)
		},
	}

	return cmd
}

func runCompact(ctx context.Context, out io.Writer, path string) error {
	cleanup := setupFileLogging()
	defer cleanup()

	env, err := resolveVault(path)
	if err != nil {
		return err
	}

	if !indexExists(env.dataDir) {
		return fmt.Errorf("no index found. Run 'vaultrank ingest' first")
	}

	vectorPath := filepath.Join(env.dataDir, "vectors.hnsw")
	dims, err := store.ReadVectorIndexDimensions(vectorPath)
	if err != nil {
		return fmt.Errorf("read vector index: %w", err)
	}
	if dims <= 0 {
		return fmt.Errorf("no vector index found at %s. Run 'vaultrank ingest' first", vectorPath)
	}

	vec, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(dims))
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer func() { _ = vec.Close() }()

	stats := vec.Stats()
	if stats.Orphans == 0 {
		_, _ = fmt.Fprintln(out, "Vector index has no orphaned nodes, nothing to compact")
		return nil
	}

	_, _ = fmt.Fprintf(out, "Compacting vector index (%d orphaned of %d nodes)...\n",
		stats.Orphans, stats.GraphNodes)
	start := time.Now()

	if err := vec.Compact(ctx); err != nil {
		return fmt.Errorf("compact vector index: %w", err)
	}
	if err := vec.Save(); err != nil {
		return fmt.Errorf("save compacted index: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Removed %d orphaned node(s) in %s, %d vector(s) remain\n",
		stats.Orphans, time.Since(start).Round(time.Millisecond), vec.Count())
	return nil
}
