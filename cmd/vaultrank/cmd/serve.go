package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/async"
	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/ingest"
	"github.com/vaultrank/vaultrank/internal/logging"
	"github.com/vaultrank/vaultrank/internal/mcp"
	"github.com/vaultrank/vaultrank/internal/store"
	"github.com/vaultrank/vaultrank/internal/watcher"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

func newServeCmd() *cobra.Command {
	var (
		offline bool
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve the vault index to MCP clients over stdio.

stdout carries JSON-RPC exclusively, so all diagnostics go to the log
file. A background watcher keeps the index fresh while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			root, err := config.FindVaultRoot(cwd)
			if err != nil {
				root = cwd
			}

			return serveVault(ctx, root, offline, !noWatch)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip the Ollama probe)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Serve a frozen index, do not watch the vault")

	return cmd
}

// runServe wires the search stack into an MCP server and blocks until
// ctx is cancelled. The vault watcher runs in the background.
func runServe(ctx context.Context, root string, offline bool) error {
	return serveVault(ctx, root, offline, true)
}

func serveVault(ctx context.Context, root string, offline, watch bool) error {
	env, err := resolveVault(root)
	if err != nil {
		return err
	}

	// stdout is the protocol channel from here on, logs go to file only.
	logCleanup, err := logging.SetupMCPModeWithLevel(env.cfg.Server.LogLevel)
	if err == nil {
		defer logCleanup()
	}

	// Opening the stack creates empty stores, so check before.
	hadIndex := indexExists(env.dataDir)
	if !hadIndex {
		slog.Info("no index found, first ingest will run in the background")
	} else if async.IncompleteBuild(env.dataDir) {
		slog.Warn("previous background ingest did not finish, index may be partial")
	}

	stack, err := openStack(ctx, env, offline)
	if err != nil {
		return err
	}
	defer closeStack(stack)

	if hadIndex {
		// Count disagreement usually means a dead ingest left the
		// stores out of sync.
		qc := store.NewConsistencyChecker(stack.Meta(), stack.Lexical(), stack.Vector())
		if counts, err := qc.QuickCheck(ctx); err == nil && !counts.Consistent() {
			slog.Warn("index counts disagree, run 'vaultrank doctor --repair'",
				slog.Int("chunks", counts.Chunks),
				slog.Int("lexical", counts.Lexical),
				slog.Int("vectors", counts.Vectors))
		}
	}

	server, err := mcp.NewServer(stack.Engine(), stack.Meta(), stack.Embedder(), env.cfg, env.root)
	if err != nil {
		return fmt.Errorf("build MCP server: %w", err)
	}

	if !hadIndex {
		// Serve immediately and build behind the handshake. Clients see
		// partial results with a notice until the build lands.
		builder, err := startFirstIngest(ctx, env, stack)
		if err != nil {
			return err
		}
		defer builder.Stop()
		server.SetIngestProgress(builder.Progress())
	}

	// The stack records query telemetry on its own; expose it as an MCP
	// resource.
	server.SetMetrics(stack.Metrics())

	if err := server.RegisterNoteResources(ctx); err != nil {
		slog.Warn("could not register note resources", slog.String("error", err.Error()))
	}

	if watch {
		// The watcher must never block or fail startup. A broken
		// watcher just means serving an index that goes stale.
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go serveWatch(watchCtx, env, stack)
	}

	transport := env.cfg.Server.Transport
	if transport == "" {
		transport = "stdio"
	}
	return server.Serve(ctx, transport)
}

// startFirstIngest builds the missing index in the background so the MCP
// handshake is not held up by a large vault.
func startFirstIngest(ctx context.Context, env vaultEnv, stack *searcher.Vault) (*async.BackgroundIngest, error) {
	pipeline, err := stack.NewPipeline()
	if err != nil {
		return nil, fmt.Errorf("build ingest pipeline: %w", err)
	}

	builder := async.NewBackgroundIngest(env.dataDir, func(ctx context.Context, progress *async.Progress) error {
		report, err := pipeline.Run(ctx, ingest.RunOptions{
			Progress: progress.Update,
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("background ingest failed", slog.String("error", err.Error()))
			}
			return err
		}
		slog.Info("background ingest complete",
			slog.Int("indexed", report.FilesIndexed),
			slog.Int("chunks", report.ChunksIndexed),
			slog.Duration("took", report.Took))
		return nil
	})
	builder.Start(ctx)
	return builder, nil
}

// serveWatch re-ingests the vault when the watcher reports changes.
// Runs until ctx is cancelled; errors degrade to a stale index.
func serveWatch(ctx context.Context, env vaultEnv, stack *searcher.Vault) {
	pipeline, err := stack.NewPipeline()
	if err != nil {
		slog.Warn("vault watcher disabled", slog.String("error", err.Error()))
		return
	}

	w := watcher.NewVaultWatcher(watcher.Options{
		Include: env.cfg.Vault.Include,
		Exclude: env.cfg.Vault.Exclude,
		DataDir: env.cfg.Storage.DataDir,
	}, slog.Default())

	if err := w.Start(ctx, env.root); err != nil {
		slog.Warn("vault watcher disabled", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = w.Stop() }()

	slog.Info("vault watcher running", slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))

		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			slog.Info("vault changed, re-ingesting", slog.Int("events", len(batch)))

			report, err := pipeline.Run(ctx, ingest.RunOptions{})
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("background re-ingest failed", slog.String("error", err.Error()))
				}
				continue
			}
			slog.Info("index refreshed",
				slog.Int("indexed", report.FilesIndexed),
				slog.Int("pruned", report.DocsPruned),
				slog.Duration("took", report.Took))
		}
	}
}
