// Package daemon keeps a warm search stack behind a Unix socket so CLI
// queries skip embedder startup. One daemon serves every vault on the
// machine; stacks load lazily per vault root and the oldest is evicted
// when too many are open. Idle periods trigger vector index compaction.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds daemon service settings.
type Config struct {
	// SocketPath is the Unix domain socket for client requests.
	// Default: ~/.vaultrank/daemon.sock
	SocketPath string

	// PIDPath stores the daemon's process ID.
	// Default: ~/.vaultrank/daemon.pid
	PIDPath string

	// Timeout bounds one client request round-trip.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long Stop waits before killing.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// MaxVaults caps the open search stacks. The least recently used
	// vault is closed when a new one would exceed the cap.
	// Default: 5
	MaxVaults int

	// AutoStart lets the CLI spawn the daemon when it is not running.
	// Default: false
	AutoStart bool

	// Compaction tunes idle-time vector index maintenance.
	Compaction CompactionConfig
}

// CompactionConfig tunes the idle compaction of vector indexes. Lazy
// deletes leave orphaned graph nodes behind; compaction rebuilds the
// graph without them once a vault has been quiet for a while.
type CompactionConfig struct {
	// Enabled turns idle compaction on.
	// Default: true
	Enabled bool

	// OrphanThreshold is the orphaned fraction of graph nodes that
	// makes a rebuild worthwhile. Range [0, 1].
	// Default: 0.2
	OrphanThreshold float64

	// MinOrphanCount is the orphan floor below which compaction never
	// runs, whatever the ratio says.
	// Default: 100
	MinOrphanCount int

	// IdleTimeout is how long a vault must go without searches before
	// compaction may start.
	// Default: 30s
	IdleTimeout time.Duration

	// Cooldown is the minimum gap between compactions of one vault.
	// Default: 1h
	Cooldown time.Duration
}

// DefaultConfig returns a Config with the stock daemon settings.
// VAULTRANK_DAEMON_SOCKET and VAULTRANK_DAEMON_PID override the
// conventional paths, for tests and for pointing several CLIs at one
// shared daemon.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	dir := filepath.Join(home, ".vaultrank")

	socketPath := filepath.Join(dir, "daemon.sock")
	if v := os.Getenv("VAULTRANK_DAEMON_SOCKET"); v != "" {
		socketPath = v
	}
	pidPath := filepath.Join(dir, "daemon.pid")
	if v := os.Getenv("VAULTRANK_DAEMON_PID"); v != "" {
		pidPath = v
	}

	return Config{
		SocketPath:          socketPath,
		PIDPath:             pidPath,
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaxVaults:           5,
		AutoStart:           false,
		Compaction:          DefaultCompactionConfig(),
	}
}

// DefaultCompactionConfig returns the stock compaction settings.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Enabled:         true,
		OrphanThreshold: 0.2,
		MinOrphanCount:  100,
		IdleTimeout:     30 * time.Second,
		Cooldown:        time.Hour,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.MaxVaults <= 0 {
		return fmt.Errorf("max vaults must be positive")
	}
	if c.Compaction.OrphanThreshold < 0 || c.Compaction.OrphanThreshold > 1 {
		return fmt.Errorf("compaction orphan threshold must be in [0, 1]")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if pidDir := filepath.Dir(c.PIDPath); pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("create PID directory: %w", err)
		}
	}

	return nil
}
