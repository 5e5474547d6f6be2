// Package watcher detects vault changes for watch-mode ingestion. It
// prefers fsnotify and falls back to mtime polling on filesystems where
// inotify is unavailable. Rapid event bursts are debounced into batches
// so one save does not trigger several pipeline runs.
package watcher

import (
	"time"
)

// Op classifies a vault change.
type Op int

const (
	// OpCreate is a new note.
	OpCreate Op = iota
	// OpModify is a changed note.
	OpModify
	// OpDelete is a removed note.
	OpDelete
	// OpRename is a moved note. The consumer sees only the new path;
	// the pipeline prune pass cleans up the old one.
	OpRename
	// OpConfigChange is an edit to .vaultrank.yaml. Consumers should
	// reload configuration before the next run.
	OpConfigChange
)

// String returns the op name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// Event is one detected vault change.
type Event struct {
	// Path is vault-relative with forward slashes, matching the ids the
	// ingest pipeline uses.
	Path string

	// Op is the change type.
	Op Op

	// Time is when the change was detected.
	Time time.Time
}

// Options configures a vault watcher.
type Options struct {
	// Debounce is the quiet window before a batch is emitted.
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode.
	PollInterval time.Duration

	// BufferSize is the batch channel capacity.
	BufferSize int

	// Include are the vault file globs. Empty matches everything.
	Include []string

	// Exclude globs override includes. The index data directory is
	// always excluded.
	Exclude []string

	// DataDir is the index directory name inside the vault, excluded
	// from watching so index writes never feed back as changes.
	DataDir string
}

// DefaultOptions returns the watch-mode defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 5 * time.Second,
		BufferSize:   64,
	}
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}
