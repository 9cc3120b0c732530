package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds the logger used by the command line: text lines, coloured when
// output is a terminal, or JSON lines when format is FormatJSON.
func New(level Level, format string, output io.Writer) Logger {
	if output == nil {
		output = os.Stderr
	}

	var formatter Formatter = &TextFormatter{TimeFormat: "15:04:05", Color: supportsColor(output)}
	if format == FormatJSON {
		formatter = &JSONFormatter{TimeFormat: time.RFC3339Nano}
	}
	return NewStandardLogger(WithLevel(level), WithOutput(output), WithFormatter(formatter))
}

// StandardLogger writes formatted entries to a single writer.
type StandardLogger struct {
	mu        *sync.Mutex
	level     Level
	output    io.Writer
	formatter Formatter
	fields    []Field
}

// NewStandardLogger constructs a StandardLogger; without options it writes
// plain text at info level to stderr.
func NewStandardLogger(options ...Option) *StandardLogger {
	log := &StandardLogger{
		mu:        &sync.Mutex{},
		level:     LevelInfo,
		output:    os.Stderr,
		formatter: &TextFormatter{TimeFormat: "15:04:05"},
	}

	for _, opt := range options {
		if opt != nil {
			opt(log)
		}
	}

	if log.output == nil {
		log.output = os.Stderr
	}
	if log.formatter == nil {
		log.formatter = &TextFormatter{TimeFormat: "15:04:05"}
	}
	return log
}

// Option configures a StandardLogger during construction.
type Option func(*StandardLogger)

// WithLevel sets the minimum Level that will be emitted by the logger.
func WithLevel(level Level) Option {
	return func(l *StandardLogger) {
		l.level = level
	}
}

// WithOutput redirects log output to the provided writer.
func WithOutput(w io.Writer) Option {
	return func(l *StandardLogger) {
		l.output = w
	}
}

// WithFormatter overrides the formatter used to render log entries.
func WithFormatter(formatter Formatter) Option {
	return func(l *StandardLogger) {
		l.formatter = formatter
	}
}

// Debug emits a debug level log entry.
func (l *StandardLogger) Debug(format string, args ...interface{}) {
	l.log(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

// Info emits an info level log entry.
func (l *StandardLogger) Info(format string, args ...interface{}) {
	l.log(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}

// Warn emits a warn level log entry.
func (l *StandardLogger) Warn(format string, args ...interface{}) {
	l.log(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

// Error emits an error level log entry.
func (l *StandardLogger) Error(format string, args ...interface{}) {
	l.log(context.Background(), LevelError, fmt.Sprintf(format, args...))
}

// DebugContext emits a debug entry tagged with the run carried by ctx.
func (l *StandardLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, fields...)
}

// InfoContext emits an info entry tagged with the run carried by ctx.
func (l *StandardLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, fields...)
}

// WarnContext emits a warn entry tagged with the run carried by ctx.
func (l *StandardLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, fields...)
}

// ErrorContext emits an error entry tagged with the run carried by ctx.
func (l *StandardLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, fields...)
}

// With derives a logger that adds fields to every entry. The child shares the
// parent's writer lock so lines from both never interleave.
func (l *StandardLogger) With(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &StandardLogger{
		mu:        l.mu,
		level:     l.level,
		output:    l.output,
		formatter: l.formatter,
		fields:    append(append([]Field{}, l.fields...), fields...),
	}
}

// SetLevel adjusts the minimum log level emitted.
func (l *StandardLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current minimum log level.
func (l *StandardLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *StandardLogger) log(ctx context.Context, level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := &Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Run:     RunFromContext(ctx),
		Fields:  append(append([]Field{}, l.fields...), fields...),
	}

	data, err := l.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format log entry: %v\n", err)
		return
	}
	if _, err := l.output.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
	}
}
