package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/ui"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

// embedderProbeTimeout bounds the status probe so an unreachable Ollama
// shows as unavailable instead of hanging the command.
const embedderProbeTimeout = 3 * time.Second

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status for the current vault",
		Long: `Show what is indexed for the current vault: note and chunk counts,
index sizes, the lexical backend in use, and embedder reachability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveVault(".")
			if err != nil {
				return err
			}

			if !indexExists(env.dataDir) {
				return fmt.Errorf("no index found in %s\nRun 'vaultrank ingest' to create one", env.dataDir)
			}

			info, err := collectStatus(cmd.Context(), env)
			if err != nil {
				return err
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
			if jsonOut {
				return renderer.RenderJSON(info)
			}
			renderer.Render(info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")

	return cmd
}

// collectStatus gathers index state without touching the write path.
func collectStatus(ctx context.Context, env vaultEnv) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		VaultName: filepath.Base(env.root),
		VaultRoot: env.root,
		Flavor:    config.DetectVaultFlavor(env.root).String(),
	}

	meta, err := store.NewSQLiteStore(filepath.Join(env.dataDir, "metadata.db"))
	if err != nil {
		return info, fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	if stats, err := meta.Stats(ctx); err == nil {
		info.Notes = stats.Documents
		info.Chunks = stats.Chunks
	}

	// Last ingest time is the newest per-document index time.
	if docs, err := meta.ListDocuments(ctx); err == nil {
		for _, d := range docs {
			if d.IndexedAt.After(info.LastIngested) {
				info.LastIngested = d.IndexedAt
			}
		}
	}

	backend := store.DetectBackend(filepath.Join(env.dataDir, "lexical"))
	if backend == "" {
		backend = store.Backend(env.cfg.Storage.Backend)
	}
	info.Backend = string(backend)

	vectorPath := filepath.Join(env.dataDir, "vectors.hnsw")
	info.MetadataSize = fileSize(filepath.Join(env.dataDir, "metadata.db"))
	info.LexicalSize = pathSize(store.LexicalIndexPath(env.dataDir, string(backend)))
	info.VectorSize = fileSize(vectorPath)
	info.Vectors = countVectors(vectorPath)

	info.Embedder, info.EmbedderStatus = probeEmbedder(ctx, env.cfg)
	return info, nil
}

// countVectors opens the vector index read-only-ish to count entries.
// Zero when the index is missing or unreadable.
func countVectors(vectorPath string) int {
	dims, err := store.ReadVectorIndexDimensions(vectorPath)
	if err != nil || dims <= 0 {
		return 0
	}
	vec, err := store.NewHNSWIndex(vectorPath, store.DefaultVectorConfig(dims))
	if err != nil {
		return 0
	}
	defer func() { _ = vec.Close() }()
	return vec.Count()
}

// probeEmbedder reports the configured embedder and whether it answers.
func probeEmbedder(ctx context.Context, cfg *config.Config) (ui.EmbedderInfo, string) {
	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	embedder, err := searcher.NewEmbedder(probeCtx, cfg, false, 0)
	if err != nil {
		return ui.EmbedderInfo{
			Backend: cfg.Embeddings.Provider,
			Model:   cfg.Embeddings.Model,
		}, ui.EmbedderUnavailable
	}
	defer func() { _ = embedder.Close() }()

	info := embedderInfo(embedder)
	switch {
	case info.Backend == "static" && cfg.Embeddings.Provider != string(embed.ProviderStatic):
		// Auto mode fell back, semantic ranking is degraded.
		return info, ui.EmbedderFallback
	case !embedder.Available(probeCtx):
		return info, ui.EmbedderUnavailable
	default:
		return info, ui.EmbedderReady
	}
}

// fileSize returns a file's size, zero when missing.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

// pathSize returns the size of a file or a directory tree.
func pathSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}

	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if fi, err := d.Info(); err == nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
