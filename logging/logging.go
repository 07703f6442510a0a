// Package logging provides leveled console output for thread lifecycle events.
// The registry snapshot is the record of what threads are doing; this package
// is for real-time monitoring of spawns, exits and shutdown progress.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
// A nil *Logger discards everything, so callers may log unconditionally.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// ParseLevel converts a config string such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// WithComponent returns a new logger with the given component name.
// Derived loggers share the parent's output lock.
func (l *Logger) WithComponent(component string) *Logger {
	if l == nil {
		return nil
	}
	c := l.clone()
	c.component = component
	return c
}

// WithTraceID returns a new logger that tags every line with trace=<id>.
func (l *Logger) WithTraceID(traceID string) *Logger {
	if l == nil {
		return nil
	}
	c := l.clone()
	c.traceID = traceID
	return c
}

func (l *Logger) clone() *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   l.traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.output = w
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelPriority[level] >= levelPriority[l.minLevel]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.traceID != "" {
		fieldStr += " trace=" + l.traceID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Thread lifecycle methods ---
// The threads package calls these at debug level only; failures are
// returned to callers, never logged by the core.

// ThreadStart logs a spawned thread.
func (l *Logger) ThreadStart(id uint64, name, shortName string) {
	l.Debug("thread_start", map[string]interface{}{
		"id":         id,
		"thread":     name,
		"short_name": shortName,
	})
}

// ThreadExit logs a thread whose body has returned.
// outcome is one of "ok", "error" or "panic".
func (l *Logger) ThreadExit(id uint64, name string, lifetime time.Duration, outcome string) {
	l.Debug("thread_exit", map[string]interface{}{
		"id":       id,
		"thread":   name,
		"lifetime": lifetime.String(),
		"outcome":  outcome,
	})
}

// JoinTimeout logs a bounded join that gave up waiting.
func (l *Logger) JoinTimeout(id uint64, name string, timeout time.Duration) {
	l.Debug("join_timeout", map[string]interface{}{
		"id":      id,
		"thread":  name,
		"timeout": timeout.String(),
	})
}

// ShutdownRequested logs the first shutdown request for a thread.
func (l *Logger) ShutdownRequested(id uint64, name string) {
	l.Debug("shutdown_requested", map[string]interface{}{
		"id":     id,
		"thread": name,
	})
}

// ShutdownStep logs progress of a shutdown phase.
// A non-nil err is logged at WARN.
func (l *Logger) ShutdownStep(phase, handler string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"phase":    phase,
		"handler":  handler,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("shutdown_step", fields)
		return
	}
	l.Info("shutdown_step", fields)
}
