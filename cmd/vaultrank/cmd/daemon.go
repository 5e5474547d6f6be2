package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/internal/daemon"
	"github.com/vaultrank/vaultrank/internal/logging"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background search daemon",
		Long: `The daemon keeps the embedder warm so CLI searches skip its startup cost.

It listens on a Unix socket, loads vault indexes lazily on first search,
and compacts vector indexes while idle.

Examples:
  vaultrank daemon start      # Start in the background
  vaultrank daemon start -f   # Run in the foreground (for debugging)
  vaultrank daemon status     # Check health and loaded vaults
  vaultrank daemon stop       # Stop it`,
	}

	cmd.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonStatusCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground instead of daemonizing")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	return cmd
}

func encodeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runDaemonStart(cmd *cobra.Command, foreground bool) error {
	out := cmd.OutOrStdout()
	cfg := daemon.DefaultConfig()

	client := daemon.NewClient(cfg)
	if client.IsRunning() {
		fmt.Fprintln(out, "Daemon is already running")
		return nil
	}

	if foreground {
		return runDaemonForeground(cmd, cfg, out)
	}
	return spawnDaemonBackground(out, client)
}

func runDaemonForeground(cmd *cobra.Command, cfg daemon.Config, out io.Writer) error {
	// Foreground keeps logs on stderr alongside the log file.
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = true
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	fmt.Fprintf(out, "Starting daemon in foreground\n")
	fmt.Fprintf(out, "  Socket: %s\n", cfg.SocketPath)
	fmt.Fprintf(out, "  Logs:   %s\n", logging.DefaultLogPath())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// spawnDaemonBackground re-execs the binary with --foreground, detached
// from the terminal session, and waits briefly for it to come up.
func spawnDaemonBackground(out io.Writer, client *daemon.Client) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	bg := exec.Command(execPath, "daemon", "start", "--foreground")
	bg.Stdin, bg.Stdout, bg.Stderr = nil, nil, nil
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bg.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Reap the child whenever it exits, and catch a startup crash.
	exited := make(chan error, 1)
	go func() { exited <- bg.Wait() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-exited:
			if err != nil {
				return fmt.Errorf("daemon exited during startup: %w", err)
			}
			return fmt.Errorf("daemon exited during startup")
		case <-time.After(100 * time.Millisecond):
		}

		if client.IsRunning() {
			fmt.Fprintf(out, "Daemon started (pid %d)\n", bg.Process.Pid)
			return nil
		}
	}

	return fmt.Errorf("daemon did not come up within 2s, check %s", logging.DefaultLogPath())
}

func runDaemonStop(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	cfg := daemon.DefaultConfig()

	pidFile := daemon.NewPIDFile(cfg.PIDPath)
	if !pidFile.IsRunning() {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("read daemon PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	// Give it the grace period before escalating.
	const poll = 100 * time.Millisecond
	for waited := time.Duration(0); waited < cfg.ShutdownGracePeriod; waited += poll {
		time.Sleep(poll)
		if !pidFile.IsRunning() {
			fmt.Fprintf(out, "Daemon stopped (was pid %d)\n", pid)
			return nil
		}
	}

	fmt.Fprintln(out, "Daemon not responding, sending SIGKILL")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill daemon: %w", err)
	}
	fmt.Fprintf(out, "Daemon killed (was pid %d)\n", pid)
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOut bool) error {
	out := cmd.OutOrStdout()
	cfg := daemon.DefaultConfig()

	client := daemon.NewClient(cfg)
	if !client.IsRunning() {
		if jsonOut {
			return encodeIndented(out, daemon.StatusResult{Running: false})
		}
		fmt.Fprintln(out, "Daemon is not running")
		fmt.Fprintln(out, "Run 'vaultrank daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("query daemon status: %w", err)
	}

	if jsonOut {
		return encodeIndented(out, status)
	}

	fmt.Fprintln(out, "Daemon is running")
	fmt.Fprintf(out, "  PID:           %d\n", status.PID)
	fmt.Fprintf(out, "  Uptime:        %s\n", status.Uptime)
	fmt.Fprintf(out, "  Embedder:      %s (%s)\n", status.EmbedderModel, status.EmbedderStatus)
	fmt.Fprintf(out, "  Vaults loaded: %d\n", status.VaultsLoaded)
	for _, root := range status.Vaults {
		fmt.Fprintf(out, "    %s\n", root)
	}
	fmt.Fprintf(out, "  Socket:        %s\n", cfg.SocketPath)

	return nil
}
