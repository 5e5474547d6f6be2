package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vaultrank/vaultrank/configs"
	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/machine-level configuration file.

User configuration holds settings shared by every vault on this machine:
the Ollama host and embedding model, SQLite cache size, ingest
parallelism, and the default log level.

Sources merge lowest to highest: hardcoded defaults, then the user
config (~/.config/vaultrank/config.yaml), then the vault config
(.vaultrank.yaml), then VAULTRANK_* environment variables.`,
		Example: `  vaultrank config init      # create user config from template
  vaultrank config show      # effective configuration, all sources merged
  vaultrank config path      # print user config file path
  vaultrank config restore   # restore the user config from a backup`,
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigPathCmd(), newConfigRestoreCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user/machine-level configuration file from a template.

The file lands at ~/.config/vaultrank/config.yaml (honoring
$XDG_CONFIG_HOME) and holds machine-specific settings like the Ollama
host, embedding model, and log level.`,
		Example: `  vaultrank config init
  vaultrank config init --force   # rewrite an existing config (backed up first)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rewrite existing configuration (with backup)")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging defaults, the user config, the
vault config, and environment variables. Pass --source to inspect a
single layer instead.`,
		Example: `  vaultrank config show
  vaultrank config show --json
  vaultrank config show --source user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, vault, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Long:  `Print the path to the user configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore user config from a backup",
		Long: `Restore the user configuration from a backup file.

Without an argument, lists the available backups. Backups are written
automatically whenever 'config init --force' rewrites the file.`,
		Example: `  vaultrank config restore
  vaultrank config restore ~/.config/vaultrank/config.yaml.bak.20260825-143000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backup := ""
			if len(args) > 0 {
				backup = args[0]
			}
			return runConfigRestore(cmd, backup)
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Newline()
			out.Status("💡", "Use --force to rewrite it (your settings are preserved)")
			return nil
		}
		return runConfigRewrite(out, configPath)
	}

	if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", config.GetUserConfigDir(), err)
	}
	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Run 'vaultrank config show' to verify")

	return nil
}

// runConfigRewrite backs up the existing user config and rewrites it
// with every field materialized, so settings survive and keys added
// since the file was written appear with their current defaults.
func runConfigRewrite(out *output.Writer, configPath string) error {
	backupPath, err := config.BackupUserConfig()
	if err != nil {
		return fmt.Errorf("backup config: %w", err)
	}

	existing, err := config.LoadUserConfig()
	if err != nil {
		return fmt.Errorf("load existing config: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("config file disappeared during rewrite")
	}

	if err := existing.WriteYAML(configPath); err != nil {
		return fmt.Errorf("write rewritten config: %w", err)
	}

	out.Success("Configuration rewritten")
	out.Statusf("📁", "Location: %s", configPath)
	out.Statusf("💾", "Backup: %s", backupPath)
	out.Newline()
	out.Status("💡", "Your existing settings have been preserved")

	return nil
}

// vaultRootOrCwd locates the enclosing vault, falling back to the
// working directory when none is found.
func vaultRootOrCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current directory: %w", err)
	}
	if root, err := config.FindVaultRoot(cwd); err == nil {
		return root, nil
	}
	return cwd, nil
}

// showMergedConfig loads the fully merged configuration.
func showMergedConfig() (*config.Config, string, error) {
	root, err := vaultRootOrCwd()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, "merged (defaults + user + vault + env)", nil
}

// showUserConfig loads the user layer alone. A nil config with nil
// error means the file does not exist and a hint was printed.
func showUserConfig(out *output.Writer) (*config.Config, string, error) {
	configPath := config.GetUserConfigPath()
	if !config.UserConfigExists() {
		out.Warning("No user configuration file found")
		out.Statusf("📁", "Expected at: %s", configPath)
		out.Status("💡", "Run 'vaultrank config init' to create one")
		return nil, "", nil
	}

	cfg, err := config.LoadUserConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load user config: %w", err)
	}
	return cfg, fmt.Sprintf("user (%s)", configPath), nil
}

// showVaultConfig loads the vault layer alone, trying both the .yaml
// and .yml spellings.
func showVaultConfig(out *output.Writer) (*config.Config, string, error) {
	root, err := vaultRootOrCwd()
	if err != nil {
		return nil, "", err
	}

	var configPath string
	for _, name := range []string{".vaultrank.yaml", ".vaultrank.yml"} {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
			break
		}
	}
	if configPath == "" {
		out.Warning("No vault configuration file found")
		out.Statusf("📁", "Expected at: %s", filepath.Join(root, ".vaultrank.yaml"))
		out.Status("💡", "Run 'vaultrank init' to create one")
		return nil, "", nil
	}

	cfg := config.NewConfig()
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("read vault config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse vault config: %w", err)
	}
	return cfg, fmt.Sprintf("vault (%s)", configPath), nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg        *config.Config
		sourceDesc string
		err        error
	)
	switch source {
	case "merged":
		cfg, sourceDesc, err = showMergedConfig()
	case "user":
		cfg, sourceDesc, err = showUserConfig(out)
	case "vault", "project":
		cfg, sourceDesc, err = showVaultConfig(out)
	case "defaults":
		cfg, sourceDesc = config.NewConfig(), "defaults (hardcoded)"
	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, vault, defaults)", source)
	}
	if err != nil || cfg == nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}

func runConfigRestore(cmd *cobra.Command, backup string) error {
	out := output.New(cmd.OutOrStdout())

	if backup == "" {
		backups, err := config.ListUserConfigBackups()
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		if len(backups) == 0 {
			out.Warning("No backups found")
			out.Statusf("📁", "Backups live next to: %s", config.GetUserConfigPath())
			return nil
		}

		out.Status("📋", "Available backups (newest first):")
		for _, b := range backups {
			out.Statusf("", "  %s", b)
		}
		out.Newline()
		out.Status("💡", "Restore one with: vaultrank config restore <backup>")
		return nil
	}

	if err := config.RestoreUserConfig(backup); err != nil {
		return fmt.Errorf("restore config: %w", err)
	}

	out.Success("Configuration restored")
	out.Statusf("📁", "Location: %s", config.GetUserConfigPath())
	out.Status("💾", "The previous file was backed up before the restore")

	return nil
}
