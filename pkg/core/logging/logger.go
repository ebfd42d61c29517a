// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     logging
// Description: Structured key/value logger used by all SpiritFlow components
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string level to a Level. Unknown values map to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the line encoding of a logger
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Fields holds structured context attached to log entries
type Fields map[string]interface{}

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Component name, rendered as {name} or "logger"
	Name string

	// Log level (debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: text)
	Format string

	// Output writer (default: stderr)
	Output io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(name string) LoggerConfig {
	return LoggerConfig{
		Name:   name,
		Level:  "info",
		Format: "text",
	}
}

// sink is shared by a logger and everything derived from it so that
// concurrent writes to the same output never interleave.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger is a named, levelled key/value logger
type Logger struct {
	name   string
	level  Level
	format Format
	fields Fields
	sink   *sink
	now    func() time.Time
}

var (
	defaultMu     sync.RWMutex
	defaultConfig = DefaultLoggerConfig("")
)

// SetDefaults changes the level, format and output used by New.
// Commands call it once after the configuration is loaded.
func SetDefaults(cfg LoggerConfig) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultConfig = cfg
}

// New creates a logger for a component using the process defaults
func New(name string) *Logger {
	defaultMu.RLock()
	cfg := defaultConfig
	defaultMu.RUnlock()

	cfg.Name = name
	return NewLogger(cfg)
}

// NewLogger creates a logger from an explicit configuration
func NewLogger(cfg LoggerConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	format := FormatText
	if strings.EqualFold(cfg.Format, "json") {
		format = FormatJSON
	}

	return &Logger{
		name:   cfg.Name,
		level:  ParseLevel(cfg.Level),
		format: format,
		fields: make(Fields),
		sink:   &sink{out: out},
		now:    time.Now,
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewLogger(LoggerConfig{Output: io.Discard, Level: "error"})
}

func (l *Logger) clone() *Logger {
	c := *l
	c.fields = make(Fields, len(l.fields))
	for k, v := range l.fields {
		c.fields[k] = v
	}
	return &c
}

// WithLevel returns a copy of the logger with the given minimum level
func (l *Logger) WithLevel(level Level) *Logger {
	c := l.clone()
	c.level = level
	return c
}

// WithField returns a copy of the logger that adds key=value to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := l.clone()
	c.fields[key] = value
	return c
}

// With returns a copy of the logger with additional key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	c := l.clone()
	for k, v := range toFields(keysAndValues...) {
		c.fields[k] = v
	}
	return c
}

// Name returns the component name
func (l *Logger) Name() string {
	return l.name
}

// IsLevelEnabled reports whether entries at level would be written
func (l *Logger) IsLevelEnabled(level Level) bool {
	return level >= l.level
}

// Debug logs a debug message with key/value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LevelDebug, msg, keysAndValues)
}

// Info logs an info message with key/value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LevelInfo, msg, keysAndValues)
}

// Warn logs a warning message with key/value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LevelWarn, msg, keysAndValues)
}

// Error logs an error message with key/value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LevelError, msg, keysAndValues)
}

func (l *Logger) log(level Level, msg string, keysAndValues []interface{}) {
	if !l.IsLevelEnabled(level) {
		return
	}

	fields := make(Fields, len(l.fields)+len(keysAndValues)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range toFields(keysAndValues...) {
		fields[k] = v
	}

	var line []byte
	if l.format == FormatJSON {
		line = l.formatJSON(level, msg, fields)
	} else {
		line = l.formatText(level, msg, fields)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = l.sink.out.Write(line)
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields) []byte {
	data := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["timestamp"] = l.now().Format(time.RFC3339)
	data["level"] = level.String()
	data["message"] = msg
	if l.name != "" {
		data["logger"] = l.name
	}

	b, err := json.Marshal(data)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`, level.String(), msg, err.Error()))
	}
	return append(b, '\n')
}

func (l *Logger) formatText(level Level, msg string, fields Fields) []byte {
	parts := []string{
		l.now().Format("15:04:05"),
		"[" + strings.ToUpper(level.String()) + "]",
	}
	if l.name != "" {
		parts = append(parts, "{"+l.name+"}")
	}
	parts = append(parts, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		parts = append(parts, "["+strings.Join(fieldParts, " ")+"]")
	}

	return []byte(strings.Join(parts, " ") + "\n")
}

// toFields converts key-value pairs to Fields
func toFields(keysAndValues ...interface{}) Fields {
	if len(keysAndValues) == 0 {
		return nil
	}

	fields := make(Fields)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
