package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IngestLock serializes writers across processes. The HNSW index has
// no multi-writer story, so ingest takes this lock before touching
// the data directory.
type IngestLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIngestLock creates a lock scoped to a data directory. The lock
// file lives at <dir>/.ingest.lock.
func NewIngestLock(dir string) *IngestLock {
	lockPath := filepath.Join(dir, ".ingest.lock")
	return &IngestLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires the exclusive lock, blocking until available.
func (l *IngestLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire ingest lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts the lock without blocking. Returns false when
// another process holds it.
func (l *IngestLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked IngestLock.
func (l *IngestLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("release ingest lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *IngestLock) Path() string {
	return l.path
}
