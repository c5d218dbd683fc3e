package applog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink receives a copy of every enabled log record for display in the UI.
// Records are stamped with the sink's clock.
type Sink interface {
	Now() time.Time
	AddLog(at time.Time, level, label, message string)
}

// Logger writes to slog and mirrors each record into a Sink.
type Logger struct {
	component string
	sink      Sink
}

// New creates a Logger for a component. sink may be nil.
func New(component string, sink Sink) *Logger {
	return &Logger{component: component, sink: sink}
}

// With returns a Logger for another component sharing the same sink.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return New(component, nil)
	}
	return &Logger{component: component, sink: l.sink}
}

func (l *Logger) Debug(msg string, attrs ...any) {
	l.log(slog.LevelDebug, "DEBUG", msg, attrs...)
}

func (l *Logger) Info(msg string, attrs ...any) {
	l.log(slog.LevelInfo, "INFO", msg, attrs...)
}

func (l *Logger) Warn(msg string, attrs ...any) {
	l.log(slog.LevelWarn, "WARN", msg, attrs...)
}

func (l *Logger) Error(msg string, attrs ...any) {
	l.log(slog.LevelError, "ERROR", msg, attrs...)
}

func (l *Logger) log(level slog.Level, label, msg string, attrs ...any) {
	component := ""
	var sink Sink
	if l != nil {
		component = l.component
		sink = l.sink
	}

	// Add component as first attribute
	allAttrs := append([]any{"component", component}, attrs...)
	slog.Log(context.Background(), level, msg, allAttrs...)

	// Only add to the UI if this level is enabled
	if sink != nil && slog.Default().Enabled(context.Background(), level) {
		at := sink.Now().UTC()
		sink.AddLog(at, label, component, FormatMessage(at, label, msg, attrs...))
	}
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatMessage formats a message with key-value pairs as a JSON line,
// keeping time, level and msg first and attributes in call order.
func FormatMessage(at time.Time, level, msg string, attrs ...any) string {
	type logEntry struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}

	entry := logEntry{
		Time:  at.UTC().Format(time.RFC3339Nano),
		Level: level,
		Msg:   msg,
	}

	var jsonParts []string
	baseJSON, _ := json.Marshal(entry)
	baseStr := string(baseJSON)
	// Remove closing brace
	baseStr = baseStr[:len(baseStr)-1]
	jsonParts = append(jsonParts, baseStr)

	for i := 0; i+1 < len(attrs); i += 2 {
		keyJSON, _ := json.Marshal(fmt.Sprint(attrs[i]))
		val := attrs[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		valJSON, err := json.Marshal(val)
		if err != nil {
			valJSON, _ = json.Marshal(fmt.Sprint(val))
		}
		jsonParts = append(jsonParts, string(keyJSON)+":"+string(valJSON))
	}

	return strings.Join(jsonParts, ",") + "}"
}
