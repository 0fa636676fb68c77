// Package logger provides the diagnostic logging interface used across flambe-go.
//
// Diagnostic logs are separate from experiment scalars; see the logging
// package for the latter.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger is the interface for library logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Level is the minimum severity a writer logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// levelFromEnv reads FLAMBE_LOG_LEVEL. FLAMBE_DEBUG=true forces debug.
func levelFromEnv() Level {
	if strings.ToLower(strings.TrimSpace(os.Getenv("FLAMBE_DEBUG"))) == "true" {
		return LevelDebug
	}
	level, err := ParseLevel(os.Getenv("FLAMBE_LOG_LEVEL"))
	if err != nil {
		return LevelInfo
	}
	return level
}

type writerLogger struct {
	minLevel Level
	out      *log.Logger
}

// NewDefaultLogger creates a logger that writes to stderr at the level
// named by FLAMBE_LOG_LEVEL (info when unset).
func NewDefaultLogger() Logger {
	return NewWriterLogger(os.Stderr, levelFromEnv())
}

// NewWriterLogger creates a logger that writes lines at or above minLevel to w.
func NewWriterLogger(w io.Writer, minLevel Level) Logger {
	return &writerLogger{
		minLevel: minLevel,
		out:      log.New(w, "", log.LstdFlags),
	}
}

func (l *writerLogger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args) }
func (l *writerLogger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args) }
func (l *writerLogger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args) }
func (l *writerLogger) Error(msg string, args ...any) { l.log(LevelError, msg, args) }

func (l *writerLogger) log(level Level, msg string, args []any) {
	if level < l.minLevel {
		return
	}
	line := "[flambe] " + level.String() + ": " + msg
	if fields := formatArgs(args); fields != "" {
		line += " " + fields
	}
	l.out.Println(line)
}

// formatArgs renders key/value pairs as key=value. Values containing
// whitespace or quotes are quoted; a trailing key without value is kept.
func formatArgs(args []any) string {
	parts := make([]string, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			parts = append(parts, fmt.Sprint(args[i]))
			break
		}
		parts = append(parts, fmt.Sprintf("%v=%s", args[i], formatValue(args[i+1])))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// With returns a logger that appends args to every call on l.
func With(l Logger, args ...any) Logger {
	if len(args) == 0 {
		return l
	}
	if w, ok := l.(*withLogger); ok {
		return &withLogger{base: w.base, fields: append(append([]any{}, w.fields...), args...)}
	}
	return &withLogger{base: l, fields: append([]any{}, args...)}
}

type withLogger struct {
	base   Logger
	fields []any
}

func (w *withLogger) merge(args []any) []any {
	out := make([]any, 0, len(args)+len(w.fields))
	out = append(out, args...)
	return append(out, w.fields...)
}

func (w *withLogger) Debug(msg string, args ...any) { w.base.Debug(msg, w.merge(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.base.Info(msg, w.merge(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.base.Warn(msg, w.merge(args)...) }
func (w *withLogger) Error(msg string, args ...any) { w.base.Error(msg, w.merge(args)...) }

type discardLogger struct{}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return discardLogger{}
}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
