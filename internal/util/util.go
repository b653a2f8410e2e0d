package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"coldstash/internal/logging"
)

// DefaultBaseDir is the state directory when the config does not name
// one: <user config dir>/coldstash.
func DefaultBaseDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(dir, "coldstash"), nil
}

// DefaultConfigPath is <base dir>/config.yaml.
func DefaultConfigPath(baseDir string) string {
	return filepath.Join(baseDir, "config.yaml")
}

func SetupDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func SetupLogging(logPath string, consoleLevel slog.Level) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger, logFile, err := logging.NewLogger(logPath, consoleLevel)
	if err != nil {
		return nil, nil, err
	}

	return logger, logFile, nil
}

// SizeString renders a byte count for display, binary units.
func SizeString(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
