package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log records go and which levels survive.
type Config struct {
	Level    string // minimum record level: debug, info, warn, or error
	FilePath string // rotating log file; empty disables file output

	// MaxSizeMB is the rotation threshold for the active file and
	// MaxFiles bounds how many rotated generations are retained.
	MaxSizeMB, MaxFiles int

	WriteToStderr bool // tee records to stderr in addition to the file
	AddSource     bool // stamp each record with its file:line origin
}

// DefaultConfig is info-level file logging with a stderr tee.
func DefaultConfig() Config {
	return Config{Level: "info", FilePath: DefaultLogPath(), MaxSizeMB: 10, MaxFiles: 5, WriteToStderr: true}
}

// DebugConfig is DefaultConfig at debug level with source locations,
// used by the --debug flag.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level, cfg.AddSource = "debug", true
	return cfg
}

// Setup builds a JSON slog.Logger backed by a rotating file per cfg.
// The returned closure flushes and closes the file; call it on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}

	file, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var sink io.Writer = file
	if cfg.WriteToStderr {
		sink = io.MultiWriter(file, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}))

	cleanup := func() {
		_ = file.Sync()
		_ = file.Close()
	}
	return logger, cleanup, nil
}

// SetupDefault installs a debug-level logger as the process default.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// Unknown names fall back to info.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// LevelFromString is parseLevel for callers outside the package, notably
// the log viewer's level filter.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
