package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that rotates its file once it grows past
// a size limit. Rotation shifts vaultrank.log to vaultrank.log.1 and so on
// up to a bounded generation count; the oldest file falls off the end.
type RotatingWriter struct {
	mu   sync.Mutex
	file *os.File
	size int64

	path      string
	limit     int64
	keep      int
	eagerSync bool
}

// NewRotatingWriter opens (or creates) path for appending. maxSizeMB caps
// the active file size; maxFiles bounds how many rotated generations are
// kept. Writes are fsynced immediately so `vaultrank logs -f` sees entries
// as soon as they land.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:      path,
		limit:     int64(maxSizeMB) << 20,
		keep:      maxFiles,
		eagerSync: true,
	}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles the per-write fsync. Tests that hammer the
// writer turn it off.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	w.eagerSync = enabled
	w.mu.Unlock()
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.shift(); err != nil {
			// Rotation failure is not a write failure; keep appending
			// to the oversized file rather than dropping records.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil && w.eagerSync {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes buffered data to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the active log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = st.Size()
	return nil
}

// generation returns the path of the n-th rotated file.
func (w *RotatingWriter) generation(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// shift closes the active file, renumbers the rotated generations from
// oldest to newest so nothing is overwritten, and reopens a fresh file.
func (w *RotatingWriter) shift() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close before rotation: %w", err)
		}
		w.file = nil
	}

	// Drop anything at or past the retention bound, including strays
	// left over from a previous, larger maxFiles setting.
	for n := w.keep; ; n++ {
		p := w.generation(n)
		if _, err := os.Stat(p); err != nil {
			break
		}
		_ = os.Remove(p)
	}

	for n := w.keep - 1; n >= 1; n-- {
		src := w.generation(n)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, w.generation(n+1))
		}
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.generation(1)); err != nil {
			return fmt.Errorf("rotate log file: %w", err)
		}
	}

	return w.reopen()
}
