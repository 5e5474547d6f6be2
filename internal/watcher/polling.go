package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the vault on a fixed
// interval and diffing mtime and size against the previous pass. The
// fallback for network mounts and platforms without fsnotify support.
type PollingWatcher struct {
	interval time.Duration
	events   chan Event
	errors   chan error
	stopCh   chan struct{}
	root     string

	mu       sync.Mutex
	state    map[string]pollState
	stopped  bool
	stopOnce sync.Once
}

// pollState is the per-file snapshot compared between passes.
type pollState struct {
	mtime time.Time
	bytes int64
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		events:   make(chan Event, 128),
		errors:   make(chan error, 8),
		stopCh:   make(chan struct{}),
		state:    make(map[string]pollState),
	}
}

// Start polls until the context is cancelled or Stop is called. It
// blocks.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	p.root = abs

	// Baseline pass; nothing is emitted for pre-existing files.
	if err := p.snapshot(); err != nil {
		return fmt.Errorf("baseline scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diff(); err != nil {
				p.reportError(err)
			}
		}
	}
}

// snapshot records the current state of every file without emitting.
func (p *PollingWatcher) snapshot() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = make(map[string]pollState)
	return p.walk(func(rel string, st pollState) {
		p.state[rel] = st
	})
}

// diff compares the vault against the previous pass and emits changes.
func (p *PollingWatcher) diff() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]pollState, len(p.state))
	err := p.walk(func(rel string, st pollState) {
		current[rel] = st

		prev, seen := p.state[rel]
		switch {
		case !seen:
			p.emit(Event{Path: rel, Op: OpCreate, Time: time.Now()})
		case prev.mtime != st.mtime || prev.bytes != st.bytes:
			p.emit(Event{Path: rel, Op: OpModify, Time: time.Now()})
		}
	})
	if err != nil {
		return fmt.Errorf("poll vault: %w", err)
	}

	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(Event{Path: rel, Op: OpDelete, Time: time.Now()})
		}
	}

	p.state = current
	return nil
}

// walk visits every regular file under the root. Caller holds p.mu.
func (p *PollingWatcher) walk(visit func(rel string, st pollState)) error {
	return filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		visit(filepath.ToSlash(rel), pollState{mtime: info.ModTime(), bytes: info.Size()})
		return nil
	})
}

// reportError forwards a poll error if anyone is listening.
func (p *PollingWatcher) reportError(err error) {
	select {
	case p.errors <- err:
	default:
	}
}

// emit sends without blocking. Caller holds p.mu.
func (p *PollingWatcher) emit(event Event) {
	if p.stopped {
		return
	}

	select {
	case p.events <- event:
	default:
		slog.Warn("polling buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()))
	}
}

// Events returns the channel of raw change events.
func (p *PollingWatcher) Events() <-chan Event {
	return p.events
}

// Errors returns the channel of non-fatal errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// Stop shuts the poller down. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		close(p.stopCh)
		close(p.events)
		close(p.errors)
	})
	return nil
}
