package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkerFile records the time of the last passed preflight run. It lives
// in the data directory alongside the index.
const MarkerFile = ".preflight-passed"

// StaleAfter bounds how long a passed preflight remains valid. System
// limits and disk space drift, so the checks rerun monthly.
const StaleAfter = 30 * 24 * time.Hour

// NeedsCheck returns true when preflight checks should run: the marker
// is missing, unreadable, or older than StaleAfter.
func NeedsCheck(dataDir string) bool {
	age, ok := markerAge(dataDir)
	if !ok {
		return true
	}
	return age > StaleAfter
}

// MarkPassed writes the marker file with the current time.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	markerPath := filepath.Join(dataDir, MarkerFile)
	content := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	return os.WriteFile(markerPath, content, 0644)
}

// ClearMarker removes the marker file, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the preflight check passed, zero if
// the marker is missing or unreadable.
func MarkerAge(dataDir string) time.Duration {
	age, ok := markerAge(dataDir)
	if !ok {
		return 0
	}
	return age
}

func markerAge(dataDir string) (time.Duration, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return 0, false
	}

	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(content)))
	if err != nil {
		return 0, false
	}

	return time.Since(t), true
}
