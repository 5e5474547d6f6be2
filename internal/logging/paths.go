package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.vaultrank/logs, or a tmpdir equivalent when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	base, err := os.UserHomeDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, ".vaultrank", "logs")
}

// DefaultLogPath is the rotating log file all commands write to.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "vaultrank.log")
}

// EnsureLogDir creates the log directory if needed.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}

// FindLogFile resolves the file the logs command should read: the
// explicit path when given, otherwise the default location. A path that
// does not exist is an error rather than an empty view.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	p := DefaultLogPath()
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("no log file at %s; run a command with --debug first", p)
	}
	return p, nil
}
