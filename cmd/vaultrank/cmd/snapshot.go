package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/daemon"
	"github.com/vaultrank/vaultrank/internal/output"
	"github.com/vaultrank/vaultrank/internal/snapshot"
	"github.com/vaultrank/vaultrank/internal/store"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and restore index snapshots",
		Long: `Save and restore named copies of the vault's index.

Take a snapshot before a risky operation (switching the embedding
model, a bulk vault edit, a weight experiment) and restore it to get
the old index back without a full re-ingest. Snapshots live under the
vault's data directory and copy only index files, never your notes.`,
		Example: `  # Save the current index
  vaultrank snapshot save before-model-switch

  # List snapshots for this vault
  vaultrank snapshot list

  # Restore one
  vaultrank snapshot restore before-model-switch

  # Remove snapshots older than 30 days
  vaultrank snapshot prune --older-than=30d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotList(cmd)
		},
	}

	cmd.AddCommand(newSnapshotSaveCmd())
	cmd.AddCommand(newSnapshotRestoreCmd())
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotDeleteCmd())
	cmd.AddCommand(newSnapshotPruneCmd())

	return cmd
}

func newSnapshotSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save NAME",
		Short: "Save the current index as a named snapshot",
		Long: `Copy the vault's current index into a named snapshot.

The save refuses while an ingest is writing the index; retry once it
finishes.`,
		Example: `  vaultrank snapshot save before-model-switch`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotSave(cmd.Context(), cmd, args[0])
		},
	}
}

func newSnapshotRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore NAME",
		Short: "Replace the current index with a snapshot",
		Long: `Replace the vault's live index with a snapshot's copy.

Stop anything serving this vault first ('vaultrank daemon stop', or
the MCP server): open readers keep handles to the replaced files and
would serve stale results until restarted. The restore refuses while
an ingest is writing.`,
		Example: `  vaultrank snapshot restore before-model-switch`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotRestore(cmd, args[0])
		},
	}
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots for this vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotList(cmd)
		},
	}
}

func newSnapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotDelete(cmd, args[0])
		},
	}
}

func newSnapshotPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than a cutoff",
		Example: `  # Remove snapshots older than 30 days
  vaultrank snapshot prune --older-than=30d

  # Remove snapshots older than a week
  vaultrank snapshot prune --older-than=7d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotPrune(cmd, olderThan)
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Delete snapshots older than this (e.g. 7d, 30d, 12h)")

	return cmd
}

func runSnapshotSave(ctx context.Context, cmd *cobra.Command, name string) error {
	env, err := resolveVault(".")
	if err != nil {
		return err
	}
	if !indexExists(env.dataDir) {
		return fmt.Errorf("no index found in %s\nRun 'vaultrank ingest' to create one", env.root)
	}

	stats, err := readIndexStats(ctx, env.dataDir)
	if err != nil {
		return err
	}

	snap, err := snapshot.NewManager(env.dataDir).Save(name, env.root, stats)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Saved snapshot '%s'", snap.Name)
	out.Statusf("📁", "Location: %s", snap.Dir)
	out.Statusf("📊", "%d notes, %d chunks", snap.Stats.Documents, snap.Stats.Chunks)
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, name string) error {
	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if daemon.NewClient(daemon.DefaultConfig()).IsRunning() {
		out.Warning("A search daemon is running; it keeps handles to the old index")
		out.Status("💡", "Run 'vaultrank daemon stop' and restore again for a clean switch")
	}

	snap, err := snapshot.NewManager(env.dataDir).Restore(name)
	if err != nil {
		return err
	}

	out.Successf("Restored snapshot '%s'", snap.Name)
	out.Statusf("📊", "%d notes, %d chunks, taken %s", snap.Stats.Documents, snap.Stats.Chunks, formatTimeAgo(snap.CreatedAt))
	out.Status("💡", "Notes edited since the snapshot need 'vaultrank ingest' to reappear")
	return nil
}

func runSnapshotList(cmd *cobra.Command) error {
	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	infos, err := snapshot.NewManager(env.dataDir).List()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Create one with: vaultrank snapshot save NAME")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCREATED\tNOTES\tCHUNKS\tSIZE")
	fmt.Fprintln(tw, "----\t-------\t-----\t------\t----")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			info.Name, formatTimeAgo(info.CreatedAt), info.Documents, info.Chunks, formatSize(info.Size))
	}
	return tw.Flush()
}

func runSnapshotDelete(cmd *cobra.Command, name string) error {
	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	if err := snapshot.NewManager(env.dataDir).Delete(name); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot '%s' deleted.\n", name)
	return nil
}

func runSnapshotPrune(cmd *cobra.Command, olderThan string) error {
	cutoff, err := parseAgeDuration(olderThan)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", olderThan, err)
	}

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	count, err := snapshot.NewManager(env.dataDir).Prune(cutoff)
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshots to prune.")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d snapshot(s).\n", count)
	}
	return nil
}

// readIndexStats opens the metadata store just long enough to read the
// note and chunk counts, then closes it so the copy sees settled files.
func readIndexStats(ctx context.Context, dataDir string) (snapshot.Stats, error) {
	meta, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return snapshot.Stats{}, fmt.Errorf("open metadata store: %w", err)
	}
	stats, err := meta.Stats(ctx)
	if cerr := meta.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return snapshot.Stats{}, fmt.Errorf("read index stats: %w", err)
	}
	return snapshot.Stats{Documents: stats.Documents, Chunks: stats.Chunks}, nil
}

// parseAgeDuration accepts Go durations plus a day suffix, "30d".
func parseAgeDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := 0
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid day format")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// formatTimeAgo renders a timestamp relative to now, dates beyond a week.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}

// formatSize renders a byte count for humans.
func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
