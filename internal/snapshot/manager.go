package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vaultrank/vaultrank/internal/store"
)

// DefaultMaxSnapshots bounds how many snapshots one vault keeps.
const DefaultMaxSnapshots = 20

// Manager stores snapshots under <dataDir>/snapshots, one directory
// per name. Save and Restore take the vault's ingest lock so they
// never interleave with an index write.
type Manager struct {
	dataDir string
	dir     string
	max     int
}

// NewManager creates a manager for a vault's data directory.
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir: dataDir,
		dir:     filepath.Join(dataDir, "snapshots"),
		max:     DefaultMaxSnapshots,
	}
}

// Save copies the current index into a new named snapshot.
func (m *Manager) Save(name, vaultRoot string, stats Stats) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid snapshot name: %w", err)
	}
	if m.Exists(name) {
		return nil, fmt.Errorf("snapshot %q already exists, delete it first", name)
	}

	count, err := m.count()
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	if count >= m.max {
		return nil, fmt.Errorf("maximum %d snapshots reached, delete or prune old ones first", m.max)
	}

	unlock, err := m.lockIndex()
	if err != nil {
		return nil, err
	}
	defer unlock()

	dir := m.path(name)
	if err := copyIndex(m.dataDir, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("copy index: %w", err)
	}

	snap := New(name, vaultRoot, dir, stats)
	if err := writeManifest(snap); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return snap, nil
}

// Restore replaces the live index with the named snapshot's copy. The
// caller must ensure nothing is serving the index; open readers keep
// file handles to the replaced files.
func (m *Manager) Restore(name string) (*Snapshot, error) {
	snap, err := m.Get(name)
	if err != nil {
		return nil, err
	}

	unlock, err := m.lockIndex()
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Clear first: the snapshot may use a different lexical backend
	// than the files currently on disk.
	if err := removeIndex(m.dataDir); err != nil {
		return nil, fmt.Errorf("clear live index: %w", err)
	}
	if err := copyIndex(snap.Dir, m.dataDir); err != nil {
		return nil, fmt.Errorf("restore index: %w", err)
	}
	return snap, nil
}

// Get loads a snapshot's manifest by name.
func (m *Manager) Get(name string) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid snapshot name: %w", err)
	}
	if !m.Exists(name) {
		return nil, fmt.Errorf("snapshot %q not found", name)
	}
	return readManifest(m.path(name))
}

// List returns all snapshots, newest first. Directories without a
// readable manifest are skipped.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshots directory: %w", err)
	}

	var infos []*Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.dir, entry.Name())
		snap, err := readManifest(dir)
		if err != nil {
			continue
		}
		infos = append(infos, snap.Info(dirSize(dir)))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete removes a snapshot and its copied index.
func (m *Manager) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("invalid snapshot name: %w", err)
	}
	if !m.Exists(name) {
		return fmt.Errorf("snapshot %q not found", name)
	}
	if err := os.RemoveAll(m.path(name)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Prune deletes snapshots older than the given age and returns how
// many went.
func (m *Manager) Prune(olderThan time.Duration) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, info := range infos {
		if time.Since(info.CreatedAt) > olderThan {
			if err := m.Delete(info.Name); err != nil {
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// Exists reports whether a snapshot with a manifest exists.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.path(name), ManifestFile))
	return err == nil
}

// lockIndex takes the vault's ingest lock without blocking. A held
// lock means an ingest is writing; copying now would tear the index.
func (m *Manager) lockIndex() (func(), error) {
	lock := store.NewIngestLock(m.dataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("an ingest is writing the index, retry when it finishes")
	}
	return func() { _ = lock.Unlock() }, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name)
}

func (m *Manager) count() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() && m.Exists(entry.Name()) {
			count++
		}
	}
	return count, nil
}
