package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("VAULTRANK_DAEMON_SOCKET", "")
	t.Setenv("VAULTRANK_DAEMON_PID", "")

	cfg := DefaultConfig()

	assert.Contains(t, cfg.SocketPath, ".vaultrank")
	assert.Equal(t, "daemon.sock", filepath.Base(cfg.SocketPath))
	assert.Equal(t, "daemon.pid", filepath.Base(cfg.PIDPath))
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 5, cfg.MaxVaults)
	assert.False(t, cfg.AutoStart)

	assert.True(t, cfg.Compaction.Enabled)
	assert.Equal(t, 0.2, cfg.Compaction.OrphanThreshold)
	assert.Equal(t, 100, cfg.Compaction.MinOrphanCount)
	assert.Equal(t, 30*time.Second, cfg.Compaction.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.Compaction.Cooldown)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VAULTRANK_DAEMON_SOCKET", "/tmp/custom.sock")
	t.Setenv("VAULTRANK_DAEMON_PID", "/tmp/custom.pid")

	cfg := DefaultConfig()

	assert.Equal(t, "/tmp/custom.sock", cfg.SocketPath)
	assert.Equal(t, "/tmp/custom.pid", cfg.PIDPath)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty socket path",
			mutate:  func(c *Config) { c.SocketPath = "" },
			wantErr: "socket path",
		},
		{
			name:    "empty PID path",
			mutate:  func(c *Config) { c.PIDPath = "" },
			wantErr: "PID path",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "negative grace period",
			mutate:  func(c *Config) { c.ShutdownGracePeriod = -time.Second },
			wantErr: "grace period",
		},
		{
			name:    "zero max vaults",
			mutate:  func(c *Config) { c.MaxVaults = 0 },
			wantErr: "max vaults",
		},
		{
			name:    "orphan threshold below zero",
			mutate:  func(c *Config) { c.Compaction.OrphanThreshold = -0.1 },
			wantErr: "orphan threshold",
		},
		{
			name:    "orphan threshold above one",
			mutate:  func(c *Config) { c.Compaction.OrphanThreshold = 1.5 },
			wantErr: "orphan threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_EnsureDir(t *testing.T) {
	base := t.TempDir()

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(base, "run", "daemon.sock")
	cfg.PIDPath = filepath.Join(base, "state", "daemon.pid")

	require.NoError(t, cfg.EnsureDir())

	for _, dir := range []string{filepath.Join(base, "run"), filepath.Join(base, "state")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
