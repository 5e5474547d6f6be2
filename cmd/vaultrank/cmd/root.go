// Package cmd provides the CLI commands for vaultrank.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/logging"
	"github.com/vaultrank/vaultrank/internal/preflight"
	"github.com/vaultrank/vaultrank/internal/profiling"
	"github.com/vaultrank/vaultrank/pkg/version"
)

// Profiling flags.
var (
	profileDir   string
	profileTrace bool

	profileSession *profiling.Session
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// configFile is the --config override; empty means the conventional
// .vaultrank.yaml lookup.
var configFile string

// NewRootCmd creates the root command for the vaultrank CLI.
func NewRootCmd() *cobra.Command {
	var (
		offline   bool
		reingest  bool
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "vaultrank",
		Short: "Local-first hybrid search over a personal knowledge vault",
		Long: `Vaultrank serves ranked hybrid search (keyword + semantic) over a
Markdown note vault to MCP clients like Claude Code.

It runs entirely locally with zero configuration required.

Just run 'vaultrank' in your vault directory to get started.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), offline, reingest, skipCheck)
		},
	}

	cmd.SetVersionTemplate("vaultrank version {{.Version}}\n")

	// Root flags
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip the Ollama probe)")
	cmd.Flags().BoolVar(&reingest, "reingest", false, "Rebuild the index even if one exists")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileDir, "profile", "", "Write CPU, heap, and goroutine profiles to this directory")
	cmd.PersistentFlags().BoolVar(&profileTrace, "profile-trace", false, "Also record an execution trace (needs --profile)")

	// Debug logging flag
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.vaultrank/logs/")

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default .vaultrank.yaml in the vault root)")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newWeightsCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts profiling and debug logging if the
// persistent flags ask for them.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileTrace && profileDir == "" {
		return fmt.Errorf("--profile-trace requires --profile")
	}
	if profileDir != "" {
		var opts []profiling.Option
		if profileTrace {
			opts = append(opts, profiling.WithTrace())
		}
		session, err := profiling.Start(profileDir, opts...)
		if err != nil {
			return fmt.Errorf("start profiling: %w", err)
		}
		profileSession = session
	}

	return nil
}

// stopProfilingAndLogging flushes profiles and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileSession != nil {
		if err := profileSession.Stop(); err != nil {
			slog.Warn("failed to stop profiling", slog.String("error", err.Error()))
		}
		profileSession = nil
	}

	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the zero-argument flow: check, ingest if
// needed, serve.
func runSmartDefault(ctx context.Context, offline, reingest, skipCheck bool) error {
	// The MCP protocol owns stdout for JSON-RPC, so nothing may be
	// printed here. Diagnostics go to the log file; 'vaultrank status'
	// and 'vaultrank doctor' cover the interactive cases.
	env, err := resolveVault(".")
	if err != nil {
		return err
	}
	root, dataDir := env.root, env.dataDir

	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(
			preflight.WithOffline(offline),
			preflight.WithOutput(io.Discard), // stdout must stay clean for MCP
		)
		results := checker.RunAll(ctx, root)

		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed, run 'vaultrank doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}

		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("could not write preflight marker", slog.String("error", err.Error()))
		}
	}

	if offline {
		slog.Debug("offline mode, using static embeddings")
	}

	// An explicit --reingest rebuilds before serving. A missing index is
	// not rebuilt here: serve builds it in the background so the MCP
	// handshake is not delayed by a large vault.
	if reingest {
		slog.Info("rebuilding index", slog.String("root", root))

		if err := runIngestAt(ctx, io.Discard, root, ingestOptions{
			rebuild: true,
			offline: offline,
			plain:   true,
		}); err != nil {
			slog.Error("ingest failed", slog.String("error", err.Error()))
			return fmt.Errorf("ingest failed: %w", err)
		}
		slog.Info("ingest complete")
	} else if !indexExists(dataDir) {
		slog.Info("no index found, serve will build it in the background")
	}

	// Start the MCP server. No stdout output before this point.
	return runServe(ctx, root, offline)
}
