// Package ui provides terminal components for ingest progress, search
// result rendering, and index status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of an ingest run.
type Stage int

const (
	// StageScanning is the vault walk.
	StageScanning Stage = iota
	// StageIndexing is the per-note chunk, embed, and index phase.
	StageIndexing
	// StagePruning removes notes that vanished from the vault.
	StagePruning
	StageComplete
)

var stageLabels = map[Stage]struct{ name, icon string }{
	StageScanning: {"Scanning", "SCAN"},
	StageIndexing: {"Indexing", "INDEX"},
	StagePruning:  {"Pruning", "PRUNE"},
	StageComplete: {"Complete", "DONE"},
}

func (s Stage) String() string {
	if l, ok := stageLabels[s]; ok {
		return l.name
	}
	return "Unknown"
}

// Icon is the short stage tag used in plain line output.
func (s Stage) Icon() string {
	if l, ok := stageLabels[s]; ok {
		return l.icon
	}
	return "???"
}

// ProgressEvent is one progress update from the ingest pipeline.
type ProgressEvent struct {
	Stage          Stage
	Current, Total int
	CurrentFile    string
	Message        string
}

// ErrorEvent is a per-file problem surfaced during ingest.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool // degraded rather than failed
}

// EmbedderInfo names the embedding backend for the completion summary.
type EmbedderInfo struct {
	Backend    string // "ollama" or "static"
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished ingest run.
type CompletionStats struct {
	Files, Chunks, Skipped, Pruned int
	Duration                       time.Duration
	Errors, Warnings               int
	Embedder                       EmbedderInfo
}

// Renderer displays ingest progress. Implementations: BarRenderer for
// interactive terminals, PlainRenderer for pipes and CI.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config selects and styles a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	VaultDir   string // shown in the header
}

// ConfigOption mutates a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain line output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithVaultDir sets the vault path shown in the header.
func WithVaultDir(dir string) ConfigOption {
	return func(c *Config) { c.VaultDir = dir }
}

// NewConfig builds a Config for the given output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a renderer for the environment: a live progress bar
// on interactive terminals, plain lines for pipes and CI.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewBarRenderer(cfg)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	return hasEnv("NO_COLOR")
}

func hasEnv(name string) bool {
	_, set := os.LookupEnv(name)
	return set
}

// ciMarkers are environment variables set by common CI systems.
var ciMarkers = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}

// DetectCI reports whether we are running under a CI system.
func DetectCI() bool {
	for _, v := range ciMarkers {
		if hasEnv(v) {
			return true
		}
	}
	return false
}
