// Package logger provides the structured logger used across alarmd.
// It wraps log/slog behind a small interface so packages depend on
// typed field constructors instead of a concrete handler.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// LogLevel controls the minimum level emitted by a logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a typed key/value pair attached to a log record.
type Field = slog.Attr

// Logger is the logging interface passed to subsystems.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger with the given fields pre-attached.
	With(fields ...Field) Logger
}

// Options tune the slog handler. A nil Options uses text output
// without source locations.
type Options struct {
	JSON      bool
	AddSource bool
}

// NewSlogLogger creates a Logger writing to w at the given level.
func NewSlogLogger(w io.Writer, level LogLevel, opts *Options) Logger {
	handlerOpts := &slog.HandlerOptions{Level: slogLevel(level)}
	if opts != nil {
		handlerOpts.AddSource = opts.AddSource
	}
	var handler slog.Handler
	if opts != nil && opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return &slogLogger{log: slog.New(handler)}
}

func slogLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
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

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.log.LogAttrs(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *slogLogger) Warn(msg string, fields ...Field) {
	l.log.LogAttrs(context.Background(), slog.LevelWarn, msg, fields...)
}

func (l *slogLogger) Error(msg string, fields ...Field) {
	l.log.LogAttrs(context.Background(), slog.LevelError, msg, fields...)
}

func (l *slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return &slogLogger{log: l.log.With(args...)}
}

// Field constructors.

func String(key, value string) Field { return slog.String(key, value) }

func Int(key string, value int) Field { return slog.Int(key, value) }

func Int64(key string, value int64) Field { return slog.Int64(key, value) }

func Uint64(key string, value uint64) Field { return slog.Uint64(key, value) }

func Bool(key string, value bool) Field { return slog.Bool(key, value) }

func Float64(key string, value float64) Field { return slog.Float64(key, value) }

func Any(key string, value any) Field { return slog.Any(key, value) }

// Error attaches an error under the conventional "error" key.
// A nil error logs as an empty string.
func Error(err error) Field {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
