package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLogger records entries in memory for assertions in tests. Context
// methods keep the run they were called with, so tests can check which jar
// or list a line belongs to.
type MockLogger struct {
	mu      sync.Mutex
	entries []MockEntry
	level   Level
}

// MockEntry is one recorded line.
type MockEntry struct {
	Level   Level
	Message string
	Run     RunContext
	Fields  []Field
}

// NewMockLogger creates a MockLogger that records every level.
func NewMockLogger() *MockLogger {
	return &MockLogger{level: LevelDebug}
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Warn(format string, args ...interface{}) {
	m.record(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(context.Background(), LevelError, fmt.Sprintf(format, args...))
}

func (m *MockLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelDebug, msg, fields...)
}

func (m *MockLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelInfo, msg, fields...)
}

func (m *MockLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelWarn, msg, fields...)
}

func (m *MockLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelError, msg, fields...)
}

// With returns the same mock so derived loggers record into it too.
func (m *MockLogger) With(...Field) Logger {
	return m
}

func (m *MockLogger) SetLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

func (m *MockLogger) GetLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *MockLogger) record(ctx context.Context, level Level, msg string, fields ...Field) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if level < m.level {
		return
	}
	m.entries = append(m.entries, MockEntry{
		Level:   level,
		Message: msg,
		Run:     RunFromContext(ctx),
		Fields:  fields,
	})
}

// GetEntries returns a copy of all recorded entries.
func (m *MockLogger) GetEntries() []MockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockEntry(nil), m.entries...)
}

// HasEntry reports whether an entry at level contains substring.
func (m *MockLogger) HasEntry(level Level, substring string) bool {
	return len(m.filter(func(e MockEntry) bool {
		return e.Level == level && strings.Contains(e.Message, substring)
	})) > 0
}

// CountEntries counts entries recorded at level.
func (m *MockLogger) CountEntries(level Level) int {
	return len(m.filter(func(e MockEntry) bool { return e.Level == level }))
}

// Messages returns the messages recorded at level, in order.
func (m *MockLogger) Messages(level Level) []string {
	var out []string
	for _, e := range m.filter(func(e MockEntry) bool { return e.Level == level }) {
		out = append(out, e.Message)
	}
	return out
}

// Contains reports whether any entry contains substring.
func (m *MockLogger) Contains(substring string) bool {
	return len(m.filter(func(e MockEntry) bool { return strings.Contains(e.Message, substring) })) > 0
}

// SourcesOf returns the run source of every entry containing substring, in
// order. Entries logged without a source contribute "".
func (m *MockLogger) SourcesOf(substring string) []string {
	var out []string
	for _, e := range m.filter(func(e MockEntry) bool { return strings.Contains(e.Message, substring) }) {
		out = append(out, e.Run.Source)
	}
	return out
}

// Reset clears all recorded entries.
func (m *MockLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

func (m *MockLogger) filter(keep func(MockEntry) bool) []MockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MockEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
