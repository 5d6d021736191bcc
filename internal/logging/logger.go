// Package logging provides structured logging with file output support.
// It uses environment variables for configuration and supports file cleanup.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Environment variables read by NewLogger.
const (
	EnvLevel  = "ELF2CPATCH_LOG_LEVEL"
	EnvPrefix = "ELF2CPATCH_LOG_PREFIX"
	EnvToFile = "ELF2CPATCH_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	// Set log level from environment
	lg.SetLevel(ParseLevel(os.Getenv(EnvLevel)))

	// Set prefix from environment
	prefix := os.Getenv(EnvPrefix)
	if prefix == "" {
		prefix = "elf2cpatch "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// ELF2CPATCH_LOG_LEVEL: debug, info, warn, error (default: info)
// ELF2CPATCH_LOG_PREFIX: prefix for log messages (default: "elf2cpatch ")
// ELF2CPATCH_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)

	// Check if we should log to file
	if os.Getenv(EnvToFile) == "1" {
		// Create timestamped log file
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("elf2cpatch-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output)
}
