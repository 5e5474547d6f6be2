package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BarRenderer draws a live progress bar for interactive terminals. Each
// ingest stage gets its own bar; errors and warnings print above the
// active bar without corrupting it.
type BarRenderer struct {
	cfg     Config
	out     io.Writer
	styles  Styles
	color   bool
	tracker *ProgressTracker

	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	barStage Stage
	barTotal int
}

// NewBarRenderer creates a progress bar renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	noColor := cfg.NoColor || DetectNoColor()
	return &BarRenderer{
		cfg:      cfg,
		out:      cfg.Output,
		styles:   GetStyles(noColor),
		color:    !noColor,
		tracker:  NewProgressTracker(),
		barStage: Stage(-1),
	}
}

// Start prints the ingest header.
func (r *BarRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.VaultDir != "" {
		fmt.Fprintf(r.out, "%s %s\n",
			r.styles.Header.Render("Ingesting vault"),
			r.styles.Dim.Render(r.cfg.VaultDir))
	}
	return nil
}

// UpdateProgress advances the bar, replacing it on stage transitions.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.SetStage(event.Stage)
	r.tracker.Update(event.Current, event.Total, event.CurrentFile)

	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Message != "" {
		r.printAboveBarLocked(r.styles.Dim.Render(event.Message))
	}

	if event.Total <= 0 {
		return
	}

	if r.bar == nil || event.Stage != r.barStage || event.Total != r.barTotal {
		r.closeBarLocked()
		r.bar = r.newBar(event.Stage, event.Total)
		r.barStage = event.Stage
		r.barTotal = event.Total
	}

	_ = r.bar.Set(event.Current)
}

// newBar builds a stage progress bar.
func (r *BarRenderer) newBar(stage Stage, total int) *progressbar.ProgressBar {
	desc := stage.String()
	theme := progressbar.Theme{
		Saucer:        "=",
		SaucerHead:    ">",
		SaucerPadding: " ",
		BarStart:      "[",
		BarEnd:        "]",
	}
	if r.color {
		desc = "[cyan]" + desc + "[reset]"
		theme = progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionEnableColorCodes(r.color),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(theme),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.out)
		}),
	)
}

// printAboveBarLocked writes a line without corrupting the active bar.
// Caller holds r.mu.
func (r *BarRenderer) printAboveBarLocked(line string) {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
	fmt.Fprintln(r.out, line)
	if r.bar != nil {
		_ = r.bar.RenderBlank()
	}
}

// closeBarLocked retires the active bar. Caller holds r.mu.
func (r *BarRenderer) closeBarLocked() {
	if r.bar == nil {
		return
	}
	if !r.bar.IsFinished() {
		_ = r.bar.Exit()
		fmt.Fprintln(r.out)
	}
	r.bar = nil
}

// AddError records and prints an error or warning.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)

	r.mu.Lock()
	defer r.mu.Unlock()

	label := r.styles.Error.Render("error")
	if event.IsWarn {
		label = r.styles.Warning.Render("warn")
	}

	var line string
	if event.File != "" {
		line = fmt.Sprintf("%s %s: %v", label, event.File, event.Err)
	} else {
		line = fmt.Sprintf("%s %v", label, event.Err)
	}
	r.printAboveBarLocked(line)
}

// Complete retires the bar and prints the summary.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeBarLocked()

	check := r.styles.Success.Render("✓")
	fmt.Fprintf(r.out, "%s Indexed %d notes (%d chunks) in %s\n",
		check, stats.Files, stats.Chunks, formatIngestDuration(stats.Duration))

	if stats.Skipped > 0 {
		fmt.Fprintf(r.out, "  %s\n", r.styles.Dim.Render(fmt.Sprintf("%d unchanged, skipped", stats.Skipped)))
	}
	if stats.Pruned > 0 {
		fmt.Fprintf(r.out, "  %s\n", r.styles.Dim.Render(fmt.Sprintf("%d deleted notes pruned", stats.Pruned)))
	}

	if spark := r.tracker.RenderSparkline(); spark != "" {
		_, avg, peak := r.tracker.SpeedStats()
		fmt.Fprintf(r.out, "  %s %s %s\n",
			r.styles.Label.Render("throughput"),
			spark,
			r.styles.Dim.Render(fmt.Sprintf("avg %.1f/s peak %.1f/s", avg, peak)))
	}

	if stats.Embedder.Backend != "" {
		fmt.Fprintf(r.out, "  %s %s\n",
			r.styles.Label.Render("embedder"),
			r.styles.Dim.Render(fmt.Sprintf("%s (%s, %d dims)", stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)))
	}

	if stats.Errors > 0 || stats.Warnings > 0 {
		level := r.styles.Warning
		if stats.Errors > 0 {
			level = r.styles.Error
		}
		fmt.Fprintf(r.out, "  %s\n", level.Render(fmt.Sprintf("%d errors, %d warnings", stats.Errors, stats.Warnings)))
	}
}

// Stop retires any active bar.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeBarLocked()
	return nil
}
