package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/logging"
	"github.com/vaultrank/vaultrank/pkg/searcher"
)

// vaultEnv is a located vault with its loaded configuration.
type vaultEnv struct {
	root    string
	dataDir string
	cfg     *config.Config
}

// resolveVault locates the vault root for a path argument and loads its
// configuration, falling back to defaults when no config file exists.
// An explicit --config file must load; the silent fallback only covers
// the conventional lookup.
func resolveVault(path string) (vaultEnv, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return vaultEnv{}, fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return vaultEnv{}, fmt.Errorf("access path: %w", err)
	}
	if !info.IsDir() {
		return vaultEnv{}, fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindVaultRoot(absPath)
	if err != nil {
		root = absPath
	}

	var cfg *config.Config
	if configFile != "" {
		cfg, err = config.LoadWithFile(root, configFile)
		if err != nil {
			return vaultEnv{}, err
		}
	} else {
		cfg, err = config.Load(root)
		if err != nil {
			cfg = config.NewConfig()
		}
	}

	return vaultEnv{root: root, dataDir: cfg.DataPath(root), cfg: cfg}, nil
}

// indexExists reports whether a metadata store lives in the data directory.
func indexExists(dataDir string) bool {
	return searcher.Indexed(dataDir)
}

// openStack opens the full search stack for a resolved vault. The caller
// must close the returned vault.
func openStack(ctx context.Context, env vaultEnv, offline bool) (*searcher.Vault, error) {
	return searcher.Open(ctx, env.root, searcher.Options{
		Config:  env.cfg,
		Offline: offline,
	})
}

// closeStack releases the stack, logging rather than failing the command
// on close errors.
func closeStack(v *searcher.Vault) {
	if err := v.Close(); err != nil {
		slog.Warn("failed to close search stack", slog.String("error", err.Error()))
	}
}

// setupFileLogging switches slog to file-only output so log lines never
// interleave with user-facing terminal output. Returns a cleanup func.
// Logging failures are not fatal for CLI use.
func setupFileLogging() func() {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
