// Package logger provides a thin structured logging facade over log/slog.
// Components take a Logger so tests can discard output and callers can
// control destination and level in one place.
package logger

import (
	"io"
	"log/slog"
	"time"
)

// LogLevel controls the minimum severity emitted by a logger.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Field is a typed key/value pair attached to a log record.
type Field struct {
	attr slog.Attr
}

// String returns a string-valued field.
func String(key, value string) Field {
	return Field{attr: slog.String(key, value)}
}

// Int returns an int-valued field.
func Int(key string, value int) Field {
	return Field{attr: slog.Int(key, value)}
}

// Int64 returns an int64-valued field.
func Int64(key string, value int64) Field {
	return Field{attr: slog.Int64(key, value)}
}

// Uint64 returns a uint64-valued field.
func Uint64(key string, value uint64) Field {
	return Field{attr: slog.Uint64(key, value)}
}

// Float64 returns a float64-valued field.
func Float64(key string, value float64) Field {
	return Field{attr: slog.Float64(key, value)}
}

// Bool returns a bool-valued field.
func Bool(key string, value bool) Field {
	return Field{attr: slog.Bool(key, value)}
}

// Duration returns a duration-valued field.
func Duration(key string, value time.Duration) Field {
	return Field{attr: slog.Duration(key, value)}
}

// Any returns a field holding an arbitrary value.
func Any(key string, value any) Field {
	return Field{attr: slog.Any(key, value)}
}

// Error returns a field holding an error under the conventional "error" key.
// A nil error renders as "<nil>".
func Error(err error) Field {
	if err == nil {
		return Field{attr: slog.String("error", "<nil>")}
	}
	return Field{attr: slog.String("error", err.Error())}
}

// Logger is the structured logging interface used throughout the module.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that includes the given fields on every record.
	With(fields ...Field) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger creates a Logger writing JSON records to w at the given
// minimum level. Base fields, if any, are attached to every record.
func NewSlogLogger(w io.Writer, level LogLevel, base []Field) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	sl := slog.New(handler)
	if len(base) > 0 {
		sl = sl.With(attrArgs(base)...)
	}
	return &slogLogger{sl: sl}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func attrArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f.attr)
	}
	return args
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, attrArgs(fields)...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.sl.Info(msg, attrArgs(fields)...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, attrArgs(fields)...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.sl.Error(msg, attrArgs(fields)...) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{sl: l.sl.With(attrArgs(fields)...)}
}
