package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// VaultWatcher watches a vault for note changes. It uses fsnotify when
// the platform supports it and falls back to mtime polling otherwise.
// Consumers receive debounced batches and typically respond by running
// the ingest pipeline once per batch.
type VaultWatcher struct {
	opts      Options
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
	poller    *PollingWatcher
	events    chan []Event
	errors    chan error
	stopCh    chan struct{}
	root      string
	logger    *slog.Logger

	mu      sync.Mutex
	stopped bool
	dropped atomic.Uint64
}

// NewVaultWatcher creates a watcher with the given options. fsnotify
// failure at construction selects polling mode instead of erroring.
func NewVaultWatcher(opts Options, logger *slog.Logger) *VaultWatcher {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	w := &VaultWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []Event, opts.BufferSize),
		errors:    make(chan error, 8),
		stopCh:    make(chan struct{}),
		logger:    logger,
	}

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		w.fsw = fsw
	} else {
		logger.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
		w.poller = NewPollingWatcher(opts.PollInterval)
	}
	return w
}

// Mode reports the detection mechanism in use.
func (w *VaultWatcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Start begins watching the vault rooted at path. Setup errors surface
// synchronously; the watch loop runs in the background until the
// context is cancelled or Stop is called.
func (w *VaultWatcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("vault root: %w", err)
	}
	w.root = abs

	if w.fsw != nil {
		if err := w.watchTree(abs); err != nil {
			return fmt.Errorf("watch vault tree: %w", err)
		}
	}

	go w.forwardBatches(ctx)
	if w.fsw != nil {
		go w.runFsnotify(ctx)
	} else {
		go w.runPolling(ctx)
	}
	return nil
}

// runFsnotify consumes raw fsnotify events until shutdown.
func (w *VaultWatcher) runFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// runPolling drains the polling watcher through the same filter and
// debouncer as fsnotify events.
func (w *VaultWatcher) runPolling(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.admit(ev.Path, ev.Op)
			case err, ok := <-w.poller.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	if err := w.poller.Start(ctx, w.root); err != nil && ctx.Err() == nil {
		w.emitError(err)
	}
}

// handleRaw filters and classifies one fsnotify event.
func (w *VaultWatcher) handleRaw(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories join the watch set so files created inside
		// them are seen.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.dirIgnored(rel) {
				_ = w.watchTree(ev.Name)
			}
			return
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and friends never affect index content.
		return
	}

	w.admit(rel, op)
}

// admit applies vault filtering and feeds the debouncer.
func (w *VaultWatcher) admit(rel string, op Op) {
	if w.ignored(rel) {
		return
	}

	if rel == ".vaultrank.yaml" || rel == ".vaultrank.yml" {
		w.debouncer.Add(Event{Path: rel, Op: OpConfigChange, Time: time.Now()})
		return
	}

	if !w.relevantFile(rel) {
		return
	}

	w.debouncer.Add(Event{Path: rel, Op: op, Time: time.Now()})
}

// forwardBatches moves debounced batches to the public channel.
func (w *VaultWatcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitBatch(batch)
		}
	}
}

// watchTree registers root and every non-ignored directory under it.
func (w *VaultWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return w.fsw.Add(path)
		}
		if w.dirIgnored(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignored reports whether a vault-relative path is outside the watch
// scope.
func (w *VaultWatcher) ignored(rel string) bool {
	if rel == "." || rel == "" {
		return true
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if dd := w.opts.DataDir; dd != "" {
		if rel == dd || strings.HasPrefix(rel, dd+"/") {
			return true
		}
	}
	return globMatch(rel, w.opts.Exclude)
}

// dirIgnored additionally prunes directories whose exclude pattern ends
// in /**, so "**/.trash/**" stops the walk at .trash itself.
func (w *VaultWatcher) dirIgnored(rel string) bool {
	if w.ignored(rel) {
		return true
	}
	for _, p := range w.opts.Exclude {
		if trimmed, found := strings.CutSuffix(p, "/**"); found {
			if ok, err := doublestar.Match(trimmed, rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// relevantFile reports whether a file path matches the include globs.
func (w *VaultWatcher) relevantFile(rel string) bool {
	if len(w.opts.Include) == 0 {
		return true
	}
	return globMatch(rel, w.opts.Include)
}

func globMatch(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// emitBatch delivers a batch without blocking the event loop. The lock
// spans the send so Stop cannot close the channel mid-emit.
func (w *VaultWatcher) emitBatch(batch []Event) {
	if len(batch) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		total := w.dropped.Add(1)
		w.logger.Warn("watch batch buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_batches", total))
	}
}

// emitError delivers a non-fatal error without blocking.
func (w *VaultWatcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// DroppedBatches returns how many batches were discarded because the
// consumer fell behind.
func (w *VaultWatcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}

// Events returns the channel of debounced change batches.
func (w *VaultWatcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *VaultWatcher) Errors() <-chan error {
	return w.errors
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *VaultWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}
