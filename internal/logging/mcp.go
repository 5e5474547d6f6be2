package logging

import "log/slog"

// SetupMCPMode configures logging for the MCP stdio server. The protocol
// owns stdout for JSON-RPC frames and many clients treat stderr output as
// a fault, so records go to the file only.
func SetupMCPMode() (func(), error) {
	return SetupMCPModeWithLevel("debug")
}

// SetupMCPModeWithLevel is SetupMCPMode at an explicit level.
func SetupMCPModeWithLevel(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	slog.Info("serving MCP, logging to file only",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}
