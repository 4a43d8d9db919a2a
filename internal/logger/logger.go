package logger

import (
	"io"
	"os"
	"time"

	clog "github.com/charmbracelet/log"
)

// Log levels
const (
	DebugLevel = clog.DebugLevel
	InfoLevel  = clog.InfoLevel
	WarnLevel  = clog.WarnLevel
	ErrorLevel = clog.ErrorLevel
)

// Logger wraps charmbracelet/log with the defaults used by the searcher.
// Stdout carries the protocol, so a Logger never writes there.
type Logger struct {
	*clog.Logger
}

// New creates a new logger writing to stderr
func New() *Logger {
	return NewWriter(os.Stderr)
}

// NewWriter creates a new logger that writes to the provided writer
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		Logger: clog.NewWithOptions(w, clog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "vanity",
		}),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewWriter(io.Discard)
}

// SetOutput sets the output destination for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}

// SetLevelString parses and applies a textual level such as "debug".
func (l *Logger) SetLevelString(level string) error {
	lvl, err := clog.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(lvl)
	return nil
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	_, err := clog.ParseLevel(level)
	return err == nil
}
