package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultrank/vaultrank/configs"
	"github.com/vaultrank/vaultrank/internal/config"
	"github.com/vaultrank/vaultrank/internal/embed"
	"github.com/vaultrank/vaultrank/internal/lifecycle"
	"github.com/vaultrank/vaultrank/internal/output"
	"github.com/vaultrank/vaultrank/pkg/version"
)

// MCPServerConfig is one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the root .mcp.json structure.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

type initOptions struct {
	global      bool
	force       bool
	offline     bool
	configOnly  bool
	withWeights bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize vaultrank for a vault",
		Long: `Initialize vaultrank for the current vault.

This command configures MCP integration (via 'claude mcp add' or
.mcp.json), writes a .vaultrank.yaml configuration template, adds the
index directory to .gitignore, and ingests the vault unless
--config-only is given.

After running, restart your MCP client to activate the server.`,
		Example: `  vaultrank init                         # initialize the current vault
  vaultrank init --weights               # also write a per-tag weights template
  vaultrank init --global                # register for all projects (user scope)
  vaultrank init --force                 # regenerate config, backing up existing files
  vaultrank init --force --config-only   # fix config only, skip ingest
  vaultrank init --offline               # static embeddings, no Ollama required`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInit(ctx, cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.global, "global", false, "Register the MCP server for all projects (user scope)")
	flags.BoolVar(&opts.force, "force", false, "Regenerate existing configuration (with backups)")
	flags.BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama required)")
	flags.BoolVar(&opts.configOnly, "config-only", false, "Configure only, skip ingest")
	flags.BoolVar(&opts.withWeights, "weights", false, "Also write a weights.yaml template")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, opts initOptions) error {
	out := output.New(cmd.OutOrStdout())

	out.Statusf("🚀", "vaultrank %s - Initializing...", version.Version)
	out.Newline()

	env, err := resolveVault(".")
	if err != nil {
		return err
	}

	out.Statusf("📁", "Vault: %s (%s)", env.root, config.DetectVaultFlavor(env.root))

	mcpConfigPath := filepath.Join(env.root, ".mcp.json")
	if !opts.force && fileExists(mcpConfigPath) {
		reportExistingInit(out, mcpConfigPath)
		return nil
	}

	// MCP integration first, so a later ingest failure still leaves
	// the server registered.
	out.Newline()
	out.Status("⚙️ ", "Configuring MCP integration...")

	mcpConfigured, err := configureMCP(ctx, out, env.root, opts.global, opts.force)
	switch {
	case err != nil:
		out.Warningf("MCP configuration failed: %v", err)
		out.Status("💡", "You can manually configure .mcp.json later")
	case mcpConfigured && opts.global:
		out.Success("Added MCP server (user scope - all projects)")
	case mcpConfigured:
		out.Success("Added MCP server (vault scope)")
	}

	if err := generateVaultConfig(out, env.root, opts.force, opts.withWeights); err != nil {
		out.Warningf("Could not create .vaultrank.yaml: %v", err)
	}
	if opts.withWeights {
		if err := generateWeightsFile(out, env.root, opts.force); err != nil {
			out.Warningf("Could not create weights.yaml: %v", err)
		}
	}

	// Keep the index out of version control.
	added, err := ensureGitignore(env.root, env.cfg.Storage.DataDir)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Statusf("📝", "Added %s to .gitignore", env.cfg.Storage.DataDir)
	}

	if opts.configOnly {
		out.Newline()
		out.Status("⏭️ ", "Skipping ingest (--config-only)")
	} else if err := initIngest(ctx, cmd, out, env, opts.offline); err != nil {
		return err
	}

	out.Newline()
	if opts.configOnly {
		out.Success("Configuration complete!")
	} else {
		out.Success("Initialization complete!")
	}
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Restart your MCP client to activate the server")
	out.Status("", "  2. Try: vaultrank search \"something you wrote\"")
	out.Status("", "  3. Run 'vaultrank doctor' to verify the setup")

	if !config.UserConfigExists() {
		out.Newline()
		out.Status("💡", "For machine-wide settings (Ollama host, log level):")
		out.Status("", "   Run 'vaultrank config init' to create a user config")
	}

	if !mcpConfigured {
		out.Newline()
		out.Warning("MCP not auto-configured - manual setup required")
		out.Statusf("💡", "Add to .mcp.json: %s", mcpConfigPath)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// reportExistingInit explains why init stopped when .mcp.json already
// exists and was not forced.
func reportExistingInit(out *output.Writer, mcpConfigPath string) {
	isValid, warnings := validateExistingMCPConfig(mcpConfigPath)
	out.Newline()

	if !isValid && len(warnings) > 0 {
		out.Warning("Existing .mcp.json has configuration issues:")
		for _, w := range warnings {
			out.Statusf("  ⚠️ ", "%s", w)
		}
		out.Newline()
		out.Status("💡", "Use --force to fix these issues")
		return
	}

	out.Warning("Vault already initialized (.mcp.json exists)")
	out.Status("💡", "Use --force to reinitialize")
}

// initIngest runs the initial ingest, checking embedder availability
// first unless offline was requested.
func initIngest(ctx context.Context, cmd *cobra.Command, out *output.Writer, env vaultEnv, offline bool) error {
	if !offline {
		out.Newline()
		out.Status("🧠", "Checking embedder availability...")

		useOffline, err := ensureEmbedderReady(ctx, out, env.cfg)
		if err != nil {
			return fmt.Errorf("embedder check failed: %w", err)
		}
		if useOffline {
			offline = true
			out.Status("ℹ️ ", "Using offline mode (keyword search only)")
		}
	}

	out.Newline()
	out.Status("📊", "Ingesting vault...")

	if err := runIngestAt(ctx, cmd.OutOrStdout(), env.root, ingestOptions{offline: offline}); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}

// generateVaultConfig writes the starter .vaultrank.yaml. Existing
// files are preserved unless force, which backs them up first.
func generateVaultConfig(out *output.Writer, root string, force, withWeights bool) error {
	target := filepath.Join(root, ".vaultrank.yaml")

	existing := ""
	for _, name := range []string{".vaultrank.yaml", ".vaultrank.yml"} {
		if p := filepath.Join(root, name); fileExists(p) {
			existing = p
			break
		}
	}

	if existing != "" {
		if !force {
			out.Statusf("ℹ️ ", "Existing %s preserved", filepath.Base(existing))
			return nil
		}
		backup, err := config.BackupFile(existing)
		if err != nil {
			return fmt.Errorf("backup %s: %w", filepath.Base(existing), err)
		}
		out.Statusf("💾", "Backed up %s", filepath.Base(backup))
		// Regenerate under the name that already existed so the vault
		// does not end up with both extensions.
		target = existing
	}

	tmpl := configs.VaultConfigTemplate
	if withWeights {
		// Point the fresh config at the weights file written alongside.
		tmpl = strings.Replace(tmpl, "# source: weights.yaml", "source: weights.yaml", 1)
	}

	if err := os.WriteFile(target, []byte(tmpl), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}

	out.Statusf("📝", "Created %s (optional configuration)", filepath.Base(target))
	return nil
}

// generateWeightsFile writes the starter per-tag weights file.
func generateWeightsFile(out *output.Writer, root string, force bool) error {
	path := filepath.Join(root, "weights.yaml")

	if fileExists(path) {
		if !force {
			out.Status("ℹ️ ", "Existing weights.yaml preserved")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("backup weights.yaml: %w", err)
		}
		out.Statusf("💾", "Backed up %s", filepath.Base(backup))
	}

	if err := os.WriteFile(path, []byte(configs.WeightsTemplate), 0o644); err != nil {
		return fmt.Errorf("write weights.yaml: %w", err)
	}

	out.Statusf("📝", "Created weights.yaml (per-tag channel weights)")
	return nil
}

// hasDataDirIgnore checks whether the index directory is already in
// .gitignore, in any of its spellings (leading or trailing slash).
func hasDataDirIgnore(content, dataDir string) bool {
	want := strings.Trim(dataDir, "/")
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Trim(line, "/") == want {
			return true
		}
	}
	return false
}

// ensureGitignore adds the index directory to .gitignore if not present.
// Returns (true, nil) if added, (false, nil) if already present.
func ensureGitignore(root, dataDir string) (bool, error) {
	if dataDir == "" || filepath.IsAbs(dataDir) {
		// An index outside the vault never lands in version control.
		return false, nil
	}

	gitignorePath := filepath.Join(root, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	if hasDataDirIgnore(string(content), dataDir) {
		return false, nil
	}

	// Match the file's existing line endings.
	eol := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		eol = "\r\n"
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, eol...)
	}

	entry := fmt.Sprintf("# vaultrank index data (auto-generated)%s%s/%s", eol, dataDir, eol)
	if len(content) > 0 {
		// Blank separator line between existing entries and ours.
		entry = eol + entry
	}
	content = append(content, entry...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}

	return true, nil
}

// validateExistingMCPConfig checks that an existing .mcp.json entry has
// the fields the server needs.
func validateExistingMCPConfig(mcpPath string) (bool, []string) {
	data, err := os.ReadFile(mcpPath)
	if err != nil {
		return false, nil
	}

	var mcpCfg MCPConfig
	if err := json.Unmarshal(data, &mcpCfg); err != nil {
		return false, []string{"Invalid JSON in .mcp.json"}
	}

	entry, exists := mcpCfg.MCPServers["vaultrank"]
	if !exists {
		return false, []string{"vaultrank not configured in .mcp.json"}
	}

	var warnings []string
	if entry.Cwd == "" {
		warnings = append(warnings, "Missing 'cwd' field - the server may run from the wrong directory")
	}
	if entry.Command == "" {
		warnings = append(warnings, "Missing 'command' field")
	}
	return len(warnings) == 0, warnings
}

// configureMCP registers the server via the claude CLI or falls back to
// writing .mcp.json.
func configureMCP(ctx context.Context, out *output.Writer, root string, global, force bool) (bool, error) {
	if claudeConfigured, err := configureViaClaude(ctx, out, root, global); err == nil && claudeConfigured {
		return true, nil
	}

	return configureViaMCPJSON(out, root, force)
}

// configureViaClaude uses 'claude mcp add' for user scope. Vault scope
// needs .mcp.json because the CLI cannot set a working directory.
func configureViaClaude(ctx context.Context, out *output.Writer, root string, global bool) (bool, error) {
	if !global {
		out.Status("ℹ️ ", "Using .mcp.json for vault scope (supports cwd)")
		return false, nil
	}

	claudePath, err := exec.LookPath("claude")
	if err != nil {
		out.Status("ℹ️ ", "Claude CLI not found, using .mcp.json fallback")
		return false, nil
	}

	out.Statusf("🔍", "Found Claude CLI: %s", claudePath)

	binPath, err := findVaultrankBinary()
	if err != nil {
		return false, fmt.Errorf("find vaultrank binary: %w", err)
	}

	add := exec.CommandContext(ctx, claudePath,
		"mcp", "add", "--transport", "stdio", "--scope", "user",
		"vaultrank", "--", binPath, "serve")
	add.Dir = root
	add.Stdout = os.Stdout
	add.Stderr = os.Stderr

	if err := add.Run(); err != nil {
		return false, fmt.Errorf("claude mcp add failed: %w", err)
	}

	return true, nil
}

// configureViaMCPJSON creates or updates .mcp.json in the vault root.
func configureViaMCPJSON(out *output.Writer, root string, force bool) (bool, error) {
	mcpPath := filepath.Join(root, ".mcp.json")

	var mcpCfg MCPConfig
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &mcpCfg); err != nil {
			return false, fmt.Errorf("parse existing .mcp.json: %w", err)
		}

		if _, exists := mcpCfg.MCPServers["vaultrank"]; exists && !force {
			out.Status("ℹ️ ", "vaultrank already configured in .mcp.json")
			return true, nil
		}
	}
	if mcpCfg.MCPServers == nil {
		mcpCfg.MCPServers = make(map[string]MCPServerConfig)
	}

	binPath, err := findVaultrankBinary()
	if err != nil {
		return false, fmt.Errorf("find vaultrank binary: %w", err)
	}

	mcpCfg.MCPServers["vaultrank"] = MCPServerConfig{
		Type:    "stdio",
		Command: binPath,
		Args:    []string{"serve"},
		Cwd:     root,
	}

	data, err := json.MarshalIndent(mcpCfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(mcpPath, data, 0o644); err != nil {
		return false, fmt.Errorf("write .mcp.json: %w", err)
	}

	out.Statusf("📝", "Created %s", mcpPath)
	return true, nil
}

// findVaultrankBinary locates the running binary for .mcp.json entries.
func findVaultrankBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			return realPath, nil
		}
		return execPath, nil
	}

	path, err := exec.LookPath("vaultrank")
	if err != nil {
		return "", fmt.Errorf("vaultrank not found in PATH: %w", err)
	}
	return path, nil
}

// ensureEmbedderReady checks that Ollama is up with the configured
// model, starting it and pulling the model as needed. Returns true when
// the caller should fall back to offline mode instead.
func ensureEmbedderReady(ctx context.Context, out *output.Writer, cfg *config.Config) (bool, error) {
	if cfg.Embeddings.Provider == string(embed.ProviderStatic) {
		// Static is deliberate, not a fallback.
		return true, nil
	}

	model := cfg.Embeddings.Model
	if model == "" {
		model = embed.DefaultOllamaModel
	}

	manager := lifecycle.NewOllamaManagerWithHost(cfg.Embeddings.OllamaHost)

	// Remote hosts are checked, never managed.
	if manager.IsRemoteHost() {
		return false, checkRemoteOllama(out, manager)
	}

	status, err := manager.Status(ctx, model)
	if err != nil {
		if running, _ := manager.IsRunning(); running {
			out.Success("Ollama is running")
			return false, nil
		}
	}

	if status != nil && !status.Installed {
		return handleOllamaNotInstalled(out)
	}

	if status != nil && !status.Running {
		out.Status("🔄", "Ollama is installed but not running. Starting...")

		if err := manager.Start(); err != nil {
			out.Warningf("Failed to start Ollama: %v", err)
			return handleOllamaStartFailed(out)
		}

		out.Status("⏳", "Waiting for Ollama to be ready...")
		if err := manager.WaitForReady(ctx, lifecycle.StartupTimeout); err != nil {
			out.Warningf("Ollama did not start in time: %v", err)
			return handleOllamaStartFailed(out)
		}

		out.Success("Ollama started")
		status, _ = manager.Status(ctx, model)
	}

	if status != nil && status.Running && !status.HasModel {
		out.Statusf("📥", "Pulling embedding model %s...", model)

		progressFunc := lifecycle.CreatePullProgressFunc(os.Stdout)
		if err := manager.PullModel(ctx, model, progressFunc); err != nil {
			out.Newline()
			out.Warningf("Failed to pull model: %v", err)
			return handleModelPullFailed(out, model)
		}

		out.Newline()
		out.Successf("Model %s ready", model)
	}

	out.Success("Embedder ready")
	return false, nil
}

func checkRemoteOllama(out *output.Writer, manager *lifecycle.OllamaManager) error {
	out.Status("ℹ️ ", "Using remote Ollama host: "+manager.Host())
	running, err := manager.IsRunning()
	if err != nil {
		return fmt.Errorf("check remote Ollama: %w", err)
	}
	if !running {
		return fmt.Errorf("remote Ollama at %s is not responding", manager.Host())
	}
	out.Success("Remote Ollama is available")
	return nil
}

// promptOfflineFallback runs the no-embedder prompt. onInstall handles
// the install-instructions choice; offline mode returns true.
func promptOfflineFallback(onInstall func() (bool, error)) (bool, error) {
	choice, err := lifecycle.PromptNoEmbedder(os.Stdout, os.Stdin)
	if err != nil {
		return false, err
	}

	switch choice {
	case lifecycle.ChoiceShowInstall:
		return onInstall()
	case lifecycle.ChoiceOfflineMode:
		return true, nil
	default:
		return false, fmt.Errorf("operation cancelled")
	}
}

// handleOllamaNotInstalled prompts when Ollama is missing, or errors
// with instructions in non-interactive runs.
func handleOllamaNotInstalled(out *output.Writer) (bool, error) {
	if !lifecycle.IsTTY() {
		out.Newline()
		out.Warning("Ollama is not installed (required for semantic search)")
		out.Newline()
		out.Status("", lifecycle.InstallInstructions())
		out.Newline()
		out.Status("💡", "Use --offline to skip semantic search")
		return false, fmt.Errorf("ollama not installed (use --offline for keyword-only search)")
	}

	return promptOfflineFallback(func() (bool, error) {
		lifecycle.ShowInstallInstructions(os.Stdout)
		out.Newline()
		out.Status("💡", "After installing Ollama, run 'vaultrank init' again")
		return false, fmt.Errorf("installation required")
	})
}

// handleOllamaStartFailed prompts after a failed auto-start.
func handleOllamaStartFailed(out *output.Writer) (bool, error) {
	if !lifecycle.IsTTY() {
		out.Status("💡", "Use --offline for keyword-only search")
		return false, fmt.Errorf("failed to start Ollama (use --offline for keyword-only search)")
	}

	return promptOfflineFallback(func() (bool, error) {
		return false, fmt.Errorf("please run 'vaultrank init' again after starting Ollama manually")
	})
}

// handleModelPullFailed prompts after a failed model pull.
func handleModelPullFailed(out *output.Writer, model string) (bool, error) {
	if !lifecycle.IsTTY() {
		out.Statusf("💡", "Pull manually with: ollama pull %s", model)
		out.Status("💡", "Or use --offline for keyword-only search")
		return false, fmt.Errorf("failed to pull model (use --offline for keyword-only search)")
	}

	out.Newline()
	out.Statusf("", "  Pull manually: ollama pull %s", model)
	out.Newline()

	return promptOfflineFallback(func() (bool, error) {
		return false, fmt.Errorf("please pull the model manually and run 'vaultrank init' again")
	})
}
