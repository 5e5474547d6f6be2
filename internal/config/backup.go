package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is how many backups of one file to keep.
	MaxBackups = 3

	// BackupSuffix marks backup files.
	BackupSuffix = ".bak"
)

// BackupFile creates a timestamped backup next to the given file and prunes
// old backups beyond MaxBackups. Returns the backup path, or an empty string
// when the file does not exist. Both the user config and the weights source
// go through this before init or restore overwrites them.
func BackupFile(path string) (string, error) {
	if !fileExists(path) {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, timestamp)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", path, err)
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	// Pruning is best effort; the backup itself succeeded.
	_ = pruneBackups(path)

	return backupPath, nil
}

// ListBackups returns the backups of one file, newest first.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	prefix := base + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	// The timestamp format sorts lexically, so name order is enough.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	return backups, nil
}

// pruneBackups removes backups beyond MaxBackups, keeping the newest.
func pruneBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, backup := range backups[MaxBackups:] {
		if err := os.Remove(backup); err != nil {
			continue
		}
	}
	return nil
}

// RestoreFile replaces path with the contents of backupPath, backing up the
// current file first. The backup is read before that safety backup is
// written; a restore in the same second as the original backup would
// otherwise clobber the data being restored.
func RestoreFile(backupPath, path string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	if fileExists(path) {
		if _, err := BackupFile(path); err != nil {
			return fmt.Errorf("backup current file before restore: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write restored file: %w", err)
	}
	return nil
}

// BackupUserConfig backs up the user configuration file.
func BackupUserConfig() (string, error) {
	return BackupFile(GetUserConfigPath())
}

// ListUserConfigBackups returns the user configuration backups, newest
// first.
func ListUserConfigBackups() ([]string, error) {
	return ListBackups(GetUserConfigPath())
}

// RestoreUserConfig restores the user configuration from a backup.
func RestoreUserConfig(backupPath string) error {
	return RestoreFile(backupPath, GetUserConfigPath())
}
