// Package lifecycle manages the local Ollama runtime for the zero-config
// flow: detecting an install, starting the server, and pulling the
// embedding model so first ingest works without manual setup.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultHost is the Ollama API endpoint.
const DefaultHost = "http://localhost:11434"

// DefaultModel mirrors the embedding default in internal/embed.
const DefaultModel = "nomic-embed-text"

// StartupTimeout bounds how long WaitForReady polls by default. Polling
// begins at ReadyPollInterval and doubles each round up to
// MaxReadyPollInterval.
const (
	StartupTimeout       = 30 * time.Second
	ReadyPollInterval    = 100 * time.Millisecond
	MaxReadyPollInterval = 2 * time.Second
)

// OllamaManager detects, starts, and provisions a local Ollama server.
type OllamaManager struct {
	host    string
	client  *http.Client
	timeout time.Duration

	// Seams for tests.
	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// OllamaStatus is a point-in-time picture of the local runtime.
type OllamaStatus struct {
	Installed     bool
	InstalledPath string
	Running       bool
	Models        []string
	HasModel      bool
	TargetModel   string
}

// PullProgress is one progress frame from a streaming model pull.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// NewOllamaManager targets the default host.
func NewOllamaManager() *OllamaManager {
	return NewOllamaManagerWithHost(DefaultHost)
}

// NewOllamaManagerWithHost targets a specific host. The
// VAULTRANK_OLLAMA_HOST environment variable wins over the argument.
func NewOllamaManagerWithHost(host string) *OllamaManager {
	if env := os.Getenv("VAULTRANK_OLLAMA_HOST"); env != "" {
		host = env
	}
	if host == "" {
		host = DefaultHost
	}

	m := &OllamaManager{
		host: host,
		// Health checks and tag listings should answer fast; pulls use
		// their own client.
		client:  &http.Client{Timeout: 5 * time.Second},
		timeout: StartupTimeout,
	}
	m.execCommand, m.lookPath, m.fileExists = exec.Command, exec.LookPath, statExists
	return m
}

func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Host returns the configured Ollama host.
func (m *OllamaManager) Host() string {
	return m.host
}

// IsRemoteHost reports whether the host is somewhere else on the
// network. Remote servers are never auto-started or auto-pulled.
func (m *OllamaManager) IsRemoteHost() bool {
	for _, local := range []string{"localhost", "127.0.0.1"} {
		if strings.Contains(m.host, local) {
			return false
		}
	}
	return true
}

// searchPaths lists where an Ollama install may live when the binary is
// not on PATH. On macOS the app bundle can exist without a CLI symlink.
func searchPaths() []string {
	home := os.Getenv("HOME")
	byOS := map[string][]string{
		"darwin": {
			"/Applications/Ollama.app",
			filepath.Join(home, "Applications", "Ollama.app"),
		},
		"linux": {
			"/usr/local/bin/ollama",
			"/usr/bin/ollama",
			filepath.Join(home, ".local", "bin", "ollama"),
		},
	}
	return byOS[runtime.GOOS]
}

// IsInstalled reports whether Ollama exists on this machine and where.
func (m *OllamaManager) IsInstalled() (bool, string, error) {
	if path, err := m.lookPath("ollama"); err == nil {
		return true, path, nil
	}
	for _, candidate := range searchPaths() {
		if m.fileExists(candidate) {
			return true, candidate, nil
		}
	}
	return false, "", nil
}

// apiGet issues a GET against the Ollama API.
func (m *OllamaManager) apiGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return m.client.Do(req)
}

// IsRunning reports whether the API answers. Connection errors mean
// "not running", not failure.
func (m *OllamaManager) IsRunning() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := m.apiGet(ctx, "/api/tags")
	if err != nil {
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the installed model names.
func (m *OllamaManager) ListModels(ctx context.Context) ([]string, error) {
	resp, err := m.apiGet(ctx, "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// modelBase lowercases a model name and strips the :tag suffix.
func modelBase(name string) string {
	base, _, _ := strings.Cut(strings.ToLower(name), ":")
	return base
}

// HasModel reports whether model is installed, matching the full name
// or the base name without the :tag suffix.
func (m *OllamaManager) HasModel(ctx context.Context, model string) (bool, error) {
	installed, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}

	want, wantBase := strings.ToLower(model), modelBase(model)
	for _, name := range installed {
		if strings.ToLower(name) == want || modelBase(name) == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// Status gathers the full runtime state for a target model.
func (m *OllamaManager) Status(ctx context.Context, targetModel string) (*OllamaStatus, error) {
	status := &OllamaStatus{TargetModel: targetModel}

	var err error
	if status.Installed, status.InstalledPath, err = m.IsInstalled(); err != nil {
		return nil, fmt.Errorf("check installation: %w", err)
	}
	if status.Running, err = m.IsRunning(); err != nil {
		return nil, fmt.Errorf("check if running: %w", err)
	}
	if !status.Running {
		return status, nil
	}

	if status.Models, err = m.ListModels(ctx); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if status.HasModel, err = m.HasModel(ctx, targetModel); err != nil {
		return nil, fmt.Errorf("check model: %w", err)
	}
	return status, nil
}

// Start brings up a local Ollama server. Already running is success.
func (m *OllamaManager) Start() error {
	installed, path, err := m.IsInstalled()
	if err != nil {
		return fmt.Errorf("check installation: %w", err)
	}
	if !installed {
		return &NotInstalledError{}
	}

	if running, _ := m.IsRunning(); running {
		return nil
	}
	return m.launch(path)
}

// launch starts the server the way the platform expects. The macOS app
// bundle and a Linux systemd unit each own the process when present;
// otherwise a detached `ollama serve` does.
func (m *OllamaManager) launch(path string) error {
	switch runtime.GOOS {
	case "darwin":
		if strings.HasSuffix(path, ".app") || m.fileExists("/Applications/Ollama.app") {
			if err := m.execCommand("open", "-a", "Ollama").Start(); err != nil {
				return fmt.Errorf("open Ollama.app: %w", err)
			}
			return nil
		}
	case "linux":
		if m.execCommand("systemctl", "is-active", "--quiet", "ollama").Run() == nil {
			for _, args := range [][]string{
				{"start", "ollama"},
				{"--user", "start", "ollama"},
			} {
				if m.execCommand("systemctl", args...).Run() == nil {
					return nil
				}
			}
		}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return m.serveDetached(path)
}

// serveDetached backgrounds `ollama serve` and reaps it so it cannot
// become a zombie.
func (m *OllamaManager) serveDetached(path string) error {
	cmd := m.execCommand(path, "serve")
	cmd.Stdout, cmd.Stderr = nil, nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ollama serve: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// WaitForReady polls with doubling backoff until the API answers or the
// timeout expires.
func (m *OllamaManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = StartupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ReadyPollInterval
	for {
		if running, _ := m.IsRunning(); running {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Ollama to start: %w", ctx.Err())
		case <-time.After(interval):
		}
		if interval *= 2; interval > MaxReadyPollInterval {
			interval = MaxReadyPollInterval
		}
	}
}

// pullFrame is one line of the streaming /api/pull response.
type pullFrame struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
}

func (f pullFrame) progress() PullProgress {
	p := PullProgress{Status: f.Status, Digest: f.Digest, Total: f.Total, Completed: f.Completed}
	if f.Total > 0 {
		p.Percent = float64(f.Completed) / float64(f.Total) * 100
	}
	return p
}

// PullModel downloads a model, streaming progress frames to
// progressFunc. Pulling an installed model is a no-op.
func (m *OllamaManager) PullModel(ctx context.Context, model string, progressFunc func(PullProgress)) error {
	present, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("check model: %w", err)
	}
	if present {
		return nil
	}

	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout here: large models stream for minutes. The
	// request context still cancels it.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var frame pullFrame
		if err := dec.Decode(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read pull response: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if progressFunc != nil {
			progressFunc(frame.progress())
		}
	}
}

// NotInstalledError indicates no Ollama install was found.
type NotInstalledError struct{}

func (e *NotInstalledError) Error() string {
	return "ollama is not installed"
}

// InstallInstructions returns platform-specific install guidance.
func InstallInstructions() string {
	steps := map[string]string{
		"darwin": `Install options:
  1. Download from: https://ollama.com/download
  2. Or via Homebrew: brew install ollama`,
		"linux": `Install:
  curl -fsSL https://ollama.com/install.sh | sh`,
	}
	install, ok := steps[runtime.GOOS]
	if !ok {
		install = `Download from: https://ollama.com/download`
	}

	return "Ollama is required for semantic search.\n\n" + install +
		"\n\nAfter installation, run: vaultrank init"
}
