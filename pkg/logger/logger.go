// ABOUTME: Logging interface shared by every netclock component
// ABOUTME: Standard, no-op and recording implementations live here
// Package logger provides the small logging surface used across netclock.
//
// Components never call the log package directly. They receive a Logger from
// their configuration so that the library stays quiet by default and the CLI
// can switch between plain and structured output.
package logger

import (
	"fmt"
	"log"
	"sync"
)

// Logger is implemented by every log backend.
type Logger interface {
	// Debug logs verbose detail. Backends may drop it unless debug is enabled.
	Debug(format string, args ...interface{})

	// Info logs an informational message (e.g., "sync succeeded").
	Info(format string, args ...interface{})

	// Warning logs a non-fatal condition (e.g., "high RTT 12000ms").
	Warning(format string, args ...interface{})

	// Error logs a failure (e.g., "all sources failed").
	Error(format string, args ...interface{})
}

// StandardLogger wraps the stdlib *log.Logger.
type StandardLogger struct {
	logger *log.Logger
	prefix string
	debug  bool
}

// NewStandardLogger creates a logger over l. An empty prefix is allowed; it is
// otherwise rendered as "[prefix] " after the level tag.
func NewStandardLogger(l *log.Logger, prefix string, debug bool) *StandardLogger {
	if l == nil {
		l = log.Default()
	}
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return &StandardLogger{logger: l, prefix: prefix, debug: debug}
}

// Debug logs with a [DEBUG] tag when debug output is enabled.
func (s *StandardLogger) Debug(format string, args ...interface{}) {
	if !s.debug {
		return
	}
	s.logger.Printf("[DEBUG] "+s.prefix+format, args...)
}

// Info logs with an [INFO] tag.
func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+s.prefix+format, args...)
}

// Warning logs with a [WARNING] tag.
func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+s.prefix+format, args...)
}

// Error logs with an [ERROR] tag.
func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+s.prefix+format, args...)
}

// NopLogger discards everything.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (NopLogger) Debug(format string, args ...interface{})   {}
func (NopLogger) Info(format string, args ...interface{})    {}
func (NopLogger) Warning(format string, args ...interface{}) {}
func (NopLogger) Error(format string, args ...interface{})   {}

// MockLogger records every call. It is safe for concurrent use because sync
// rounds log from several goroutines.
type MockLogger struct {
	mu           sync.Mutex
	DebugCalls   []string
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
}

// NewMockLogger creates a new MockLogger for testing.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(&m.DebugCalls, format, args)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.InfoCalls, format, args)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.WarningCalls, format, args)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.ErrorCalls, format, args)
}

func (m *MockLogger) record(dst *[]string, format string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
}

// Warnings returns a copy of the recorded warnings.
func (m *MockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.WarningCalls...)
}

// Errors returns a copy of the recorded errors.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = NopLogger{}
	_ Logger = (*MockLogger)(nil)
)
