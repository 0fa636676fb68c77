// Package logger provides loggers for tests.
package logger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/flambeai/flambe-go/logger"
)

// FailTestLogger fails the test when code under test emits a warning or error.
type FailTestLogger struct {
	t *testing.T
}

// NewFailTestLogger creates a logger that fails t on warnings or errors.
func NewFailTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	return &FailTestLogger{t: t}
}

// Debug writes to the test log.
func (l *FailTestLogger) Debug(msg string, args ...any) {
	l.t.Helper()
	l.t.Logf("[DEBUG] %s %v", msg, args)
}

// Info writes to the test log.
func (l *FailTestLogger) Info(msg string, args ...any) {
	l.t.Helper()
	l.t.Logf("[INFO] %s %v", msg, args)
}

// Warn fails the test.
func (l *FailTestLogger) Warn(msg string, args ...any) {
	l.t.Helper()
	l.t.Fatalf("[WARN] %s %v", msg, args)
}

// Error fails the test.
func (l *FailTestLogger) Error(msg string, args ...any) {
	l.t.Helper()
	l.t.Fatalf("[ERROR] %s %v", msg, args)
}

// Recorder keeps every formatted log line. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Debug records the message.
func (r *Recorder) Debug(msg string, args ...any) { r.record("DEBUG", msg, args) }

// Info records the message.
func (r *Recorder) Info(msg string, args ...any) { r.record("INFO", msg, args) }

// Warn records the message.
func (r *Recorder) Warn(msg string, args ...any) { r.record("WARN", msg, args) }

// Error records the message.
func (r *Recorder) Error(msg string, args ...any) { r.record("ERROR", msg, args) }

func (r *Recorder) record(level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf("%s %s %v", level, msg, args))
}

// Lines returns the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
