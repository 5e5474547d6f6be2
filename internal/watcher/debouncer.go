package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path and emits batches after a
// quiet window. A save that produces CREATE then three MODIFYs becomes
// one CREATE; a file created and deleted inside the window disappears
// entirely.
type Debouncer struct {
	window time.Duration
	output chan []Event

	mu      sync.Mutex
	pending map[string]*pendingChange
	timer   *time.Timer
	stopped bool
}

// pendingChange tracks the first and latest op seen for a path. The
// effective op is resolved at flush time.
type pendingChange struct {
	first Op
	last  Op
	event Event
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		output:  make(chan []Event, 8),
		pending: make(map[string]*pendingChange),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if p, ok := d.pending[event.Path]; ok {
		p.last = event.Op
		p.event = event
	} else {
		d.pending[event.Path] = &pendingChange{
			first: event.Op,
			last:  event.Op,
			event: event,
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// resolveOp collapses an op sequence to its net effect:
//
//	CREATE .. DELETE  -> nothing, the file never really existed
//	DELETE .. CREATE  -> MODIFY, the file was replaced
//	CREATE .. any     -> CREATE, the file is still new
//	otherwise         -> the latest op
func resolveOp(first, last Op) (Op, bool) {
	switch {
	case first == OpCreate && last == OpDelete:
		return 0, false
	case first == OpDelete && last == OpCreate:
		return OpModify, true
	case first == OpCreate:
		return OpCreate, true
	default:
		return last, true
	}
}

// flush emits all pending changes as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, p := range d.pending {
		op, keep := resolveOp(p.first, p.last)
		if !keep {
			continue
		}
		ev := p.event
		ev.Op = op
		events = append(events, ev)
	}
	d.pending = make(map[string]*pendingChange)

	if len(events) == 0 {
		return
	}

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
