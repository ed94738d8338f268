package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a single structured logging field as a key/value pair.
// Fields are attached to log entries to provide machine-readable context.
type Field struct {
	// Key is the field name.
	Key string
	// Value is the field value; the adapter picks the encoding by type.
	Value any
}

// String creates a string-valued field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int-valued field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64-valued field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64-valued field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64-valued field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool-valued field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Err creates an error-valued field with the conventional "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Logger is the logging interface used throughout the application.
// It decouples components from the concrete logging backend.
type Logger interface {
	// Info logs an informational message with optional structured fields.
	Info(msg string, fields ...Field)
	// Error logs an error message with the causing error and optional fields.
	Error(msg string, err error, fields ...Field)
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...Field)
	// Printf logs a formatted message at info level (legacy-style API).
	Printf(format string, args ...any)
	// Println logs its arguments at info level (legacy-style API).
	Println(args ...any)
}

// ZerologAdapter adapts a zerolog.Logger to the Logger interface.
type ZerologAdapter struct {
	zl zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog.Logger.
func NewZerologAdapter(zl zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{zl: zl}
}

// NewLogger creates a ZerologAdapter writing JSON entries to w, tagged with a
// component field identifying the subsystem.
func NewLogger(w io.Writer, component string) *ZerologAdapter {
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologAdapter{zl: zl}
}

// NewDefaultLogger creates the standard application logger writing to stderr.
// When stderr is a terminal, a human-friendly console writer is used.
func NewDefaultLogger() *ZerologAdapter {
	var w io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return &ZerologAdapter{zl: zl}
}

// Info logs an informational message with optional structured fields.
func (a *ZerologAdapter) Info(msg string, fields ...Field) {
	a.applyFields(a.zl.Info(), fields).Msg(msg)
}

// Error logs an error message with the causing error and optional fields.
func (a *ZerologAdapter) Error(msg string, err error, fields ...Field) {
	a.applyFields(a.zl.Error().Err(err), fields).Msg(msg)
}

// Debug logs a debug-level message with optional structured fields.
func (a *ZerologAdapter) Debug(msg string, fields ...Field) {
	a.applyFields(a.zl.Debug(), fields).Msg(msg)
}

// Printf logs a formatted message at info level.
func (a *ZerologAdapter) Printf(format string, args ...any) {
	a.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Println logs its arguments at info level.
func (a *ZerologAdapter) Println(args ...any) {
	a.zl.Info().Msg(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// applyFields attaches structured fields to a zerolog event, choosing the
// encoder by the dynamic type of each value.
func (a *ZerologAdapter) applyFields(ev *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case int64:
			ev = ev.Int64(f.Key, v)
		case uint64:
			ev = ev.Uint64(f.Key, v)
		case float64:
			ev = ev.Float64(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case error:
			ev = ev.AnErr(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	return ev
}

// StdLoggerAdapter adapts the standard library *log.Logger to the Logger
// interface. Fields are appended as "key=value" pairs after the message.
type StdLoggerAdapter struct {
	l *log.Logger
}

// NewStdLoggerAdapter wraps a standard library logger.
func NewStdLoggerAdapter(l *log.Logger) *StdLoggerAdapter {
	return &StdLoggerAdapter{l: l}
}

// Info logs an informational message with optional fields.
func (a *StdLoggerAdapter) Info(msg string, fields ...Field) {
	a.l.Printf("[INFO] %s%s", msg, formatFields(fields))
}

// Error logs an error message with the causing error and optional fields.
func (a *StdLoggerAdapter) Error(msg string, err error, fields ...Field) {
	if err != nil {
		a.l.Printf("[ERROR] %s: %v%s", msg, err, formatFields(fields))
		return
	}
	a.l.Printf("[ERROR] %s%s", msg, formatFields(fields))
}

// Debug logs a debug-level message with optional fields.
func (a *StdLoggerAdapter) Debug(msg string, fields ...Field) {
	a.l.Printf("[DEBUG] %s%s", msg, formatFields(fields))
}

// Printf logs a formatted message.
func (a *StdLoggerAdapter) Printf(format string, args ...any) {
	a.l.Printf(format, args...)
}

// Println logs its arguments.
func (a *StdLoggerAdapter) Println(args ...any) {
	a.l.Println(args...)
}

// formatFields renders fields as " key=value key=value" for plain-text output.
func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

// NopLogger is a Logger that discards all output. Useful in tests and for
// components constructed without an explicit logger.
type NopLogger struct{}

// Info discards the message.
func (NopLogger) Info(string, ...Field) {}

// Error discards the message.
func (NopLogger) Error(string, error, ...Field) {}

// Debug discards the message.
func (NopLogger) Debug(string, ...Field) {}

// Printf discards the message.
func (NopLogger) Printf(string, ...any) {}

// Println discards the message.
func (NopLogger) Println(...any) {}
