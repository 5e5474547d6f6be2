// Package async runs the first vault ingest off the serving path so an
// MCP client can connect to an unindexed vault without waiting out the
// build. Searches against the partial index return whatever has been
// indexed so far.
package async

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerFile flags an ingest that never finished. It is written when a
// background build starts and removed when the build exits, so finding
// it on startup means a previous process died mid-build.
const MarkerFile = ".ingest-incomplete"

// RunFunc does the ingest work, reporting file progress through the
// tracker. The runner owns the terminal state; RunFunc only updates.
type RunFunc func(ctx context.Context, progress *Progress) error

// BackgroundIngest runs one ingest in a goroutine. Single use: Start
// once, then Stop or Wait.
type BackgroundIngest struct {
	dataDir  string
	run      RunFunc
	progress *Progress

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

// NewBackgroundIngest creates a runner over the given ingest function.
// The data directory receives the incomplete-build marker.
func NewBackgroundIngest(dataDir string, run RunFunc) *BackgroundIngest {
	return &BackgroundIngest{
		dataDir:  dataDir,
		run:      run,
		progress: NewProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the tracker readers poll while the build runs.
func (b *BackgroundIngest) Progress() *Progress {
	return b.progress
}

// Running returns true while the build goroutine is active.
func (b *BackgroundIngest) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches the build goroutine and returns immediately. Repeat
// calls are no-ops.
func (b *BackgroundIngest) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.runBuild(ctx)
}

func (b *BackgroundIngest) runBuild(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := b.writeMarker(); err != nil {
		b.fail(err)
		return
	}
	defer func() { _ = os.Remove(filepath.Join(b.dataDir, MarkerFile)) }()

	if b.run != nil {
		if err := b.run(ctx, b.progress); err != nil {
			b.fail(err)
			return
		}
	}
	b.progress.SetReady()
}

func (b *BackgroundIngest) fail(err error) {
	b.progress.SetFailed(err.Error())
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *BackgroundIngest) writeMarker() error {
	if err := os.MkdirAll(b.dataDir, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(b.dataDir, MarkerFile)
	content := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	return os.WriteFile(marker, content, 0o644)
}

// Stop cancels the build and waits for the goroutine to exit. Safe to
// call repeatedly or before Start.
func (b *BackgroundIngest) Stop() {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return
	}

	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// Wait blocks until a started build finishes and returns its error.
func (b *BackgroundIngest) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// IncompleteBuild reports whether a previous background ingest died
// before finishing.
func IncompleteBuild(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, MarkerFile))
	return err == nil
}
