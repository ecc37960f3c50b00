// Package logging provides the analysis core's structured logger with file
// output support. It is configured through environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const (
	envLevel  = "OUROBOROS_LOG_LEVEL"
	envPrefix = "OUROBOROS_LOG_PREFIX"
	envToFile = "OUROBOROS_LOG_TO_FILE"
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

// With returns a logger carrying keyvals that shares the writer of lc.
// Closing the returned logger does not close the writer.
func (lc *LoggerCloser) With(keyvals ...any) *LoggerCloser {
	return &LoggerCloser{Logger: lc.Logger.With(keyvals...)}
}

// ParseLevel maps the level names accepted in OUROBOROS_LOG_LEVEL.
// Unknown names are info.
func ParseLevel(name string) log.Level {
	switch name {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           ParseLevel(os.Getenv(envLevel)),
	})

	prefix := os.Getenv(envPrefix)
	if prefix == "" {
		prefix = "ouroboros "
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

// Discard returns a logger that drops everything. Tests and library callers
// without a logger use it.
func Discard() *LoggerCloser {
	return NewLoggerWithWriter(io.Discard)
}

// NewFileLogger appends to the file at path.
func NewFileLogger(path string) (*LoggerCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return NewLoggerWithWriter(f), nil
}

// NewLogger creates a new logger based on environment variables
// OUROBOROS_LOG_LEVEL: debug, info, warn, error (default: info)
// OUROBOROS_LOG_PREFIX: prefix for log messages (default: "ouroboros ")
// OUROBOROS_LOG_TO_FILE: when set to "1", logs to ouroboros-<time>-debug.log instead of stderr
func NewLogger() *LoggerCloser {
	if os.Getenv(envToFile) == "1" {
		name := fmt.Sprintf("ouroboros-%s-debug.log", time.Now().Format("20060102-150405"))
		if lg, err := NewFileLogger(name); err == nil {
			return lg
		}
	}
	return NewLoggerWithWriter(os.Stderr)
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv(envLevel) == "debug"
}
