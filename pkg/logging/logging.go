// Package logging configures the process-wide charmbracelet logger.
// Other packages log through github.com/charmbracelet/log directly.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string
	TimeFormat string
	ShowCaller bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		TimeFormat: "15:04:05",
	}
}

// Init replaces the default logger with one writing to stderr.
func Init(cfg Config) *log.Logger {
	return InitWriter(os.Stderr, cfg)
}

// InitWriter replaces the default logger with one writing to w.
func InitWriter(w io.Writer, cfg Config) *log.Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = DefaultConfig().TimeFormat
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.ShowCaller,
	})
	logger.SetLevel(ParseLevel(cfg.Level))
	log.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name onto a charmbracelet level. Unknown names
// fall back to info; "trace" is treated as debug.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
