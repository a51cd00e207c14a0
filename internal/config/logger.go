package config

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// ParseLogLevel maps a level name to a log.Level, defaulting to info.
func ParseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
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

// NewLogger builds the server logger: text in development, JSON otherwise.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	formatter := log.JSONFormatter
	if c.Development() {
		formatter = log.TextFormatter
	}
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLogLevel(c.LogLevel),
		Formatter:       formatter,
		ReportTimestamp: true,
	})
}
