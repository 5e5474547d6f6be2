// Package snapshot saves and restores named copies of a vault's index.
// A snapshot taken before a risky operation (embedding model switch,
// bulk vault edit, weight experiment) brings the index back without a
// full re-ingest.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/vaultrank/vaultrank/pkg/version"
)

// ManifestFile is the metadata file inside each snapshot directory.
const ManifestFile = "manifest.json"

// maxNameLength bounds snapshot names; they become directory names.
const maxNameLength = 64

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName rejects names that cannot serve as a directory name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("snapshot name too long (max %d chars)", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("snapshot name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// Snapshot is one named index copy plus its manifest.
type Snapshot struct {
	Name      string    `json:"name"`
	VaultRoot string    `json:"vault_root"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
	Stats     Stats     `json:"stats"`

	// Dir is where the copy lives. Computed, not persisted.
	Dir string `json:"-"`
}

// Stats records the index shape at snapshot time.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Info summarizes a snapshot for listing.
type Info struct {
	Name      string
	CreatedAt time.Time
	Documents int
	Chunks    int
	Size      int64
}

// New creates a snapshot manifest for the given vault.
func New(name, vaultRoot, dir string, stats Stats) *Snapshot {
	return &Snapshot{
		Name:      name,
		VaultRoot: vaultRoot,
		CreatedAt: time.Now(),
		Version:   version.Version,
		Stats:     stats,
		Dir:       dir,
	}
}

// Age returns how long ago the snapshot was taken.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.CreatedAt)
}

// Info converts the snapshot to its listing summary.
func (s *Snapshot) Info(size int64) *Info {
	return &Info{
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		Documents: s.Stats.Documents,
		Chunks:    s.Stats.Chunks,
		Size:      size,
	}
}

// writeManifest persists the manifest atomically via temp and rename.
func writeManifest(s *Snapshot) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(s.Dir, ManifestFile)
	tmp, err := os.CreateTemp(s.Dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close manifest temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// readManifest loads the manifest from a snapshot directory.
func readManifest(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no manifest in %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	s.Dir = dir
	return &s, nil
}
