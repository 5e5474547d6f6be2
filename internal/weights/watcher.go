package weights

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Provider when its weight source changes on disk.
// It watches the source's parent directory so atomic saves (write to
// temp file, rename over target) are observed, and debounces bursts of
// events from editors that write multiple times.
type Watcher struct {
	provider *Provider
	debounce time.Duration
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	reloads  atomic.Uint64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce window (default 200ms).
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger for reload events.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher creates a watcher for the provider's weight source.
// Returns an error if the provider has no source configured or the
// fsnotify watcher cannot be created.
func NewWatcher(provider *Provider, opts ...WatcherOption) (*Watcher, error) {
	if provider.Source() == "" {
		return nil, fmt.Errorf("no weight source configured")
	}

	w := &Watcher{
		provider: provider,
		debounce: 200 * time.Millisecond,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	return w, nil
}

// Start begins watching and returns once the watch is registered.
// The reload loop runs until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.provider.Source())
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
	})
	return err
}

// Reloads returns the number of reloads triggered so far.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

func (w *Watcher) loop(ctx context.Context) {
	target := filepath.Base(w.provider.Source())

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			// Reset the debounce window on each burst event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			w.provider.Reload()
			w.reloads.Add(1)
			w.logger.Info("weight source changed, cache reloaded",
				slog.String("path", w.provider.Source()))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("weight watcher error", slog.String("error", err.Error()))
		}
	}
}
