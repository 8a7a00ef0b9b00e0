package config

import (
	"os"
	"path/filepath"

	"github.com/rshade/healthbridge/internal/logging"
)

// ToLoggingConfig converts the YAML logging section into a logging.Config.
// A non-empty File selects file output; otherwise logs go to stderr.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	out := logging.Config{Level: lc.Level, Format: lc.Format, Output: logging.OutputStderr}
	if lc.File != "" {
		out.Output = outputTypeFile
		out.File = lc.File
	}
	return out
}

// EnsureDir creates the directory holding the log file. No file, no-op.
func (lc LoggingConfig) EnsureDir() error {
	if lc.File == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(lc.File), 0o750)
}

// GetLoggingConfig returns a copy of the global config's logging section.
func GetLoggingConfig() LoggingConfig {
	return GetGlobalConfig().Logging
}
