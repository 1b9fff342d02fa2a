// Package logger provides a structured logging abstraction with slog and
// zap backends.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one structured key/value on a log entry.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Duration is rendered as <key>_ms by both backends.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Err records err under "error"; a nil error logs as null.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is implemented by the slog and zap backends.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger carrying fields on every entry.
	With(fields ...Field) Logger
	// WithContext adds request_id and batch_id when ctx carries them.
	WithContext(ctx context.Context) Logger
}

// Backend names accepted by New.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// Config selects backend, level and encoding. Format is "json" or "text";
// a nil Output writes to stdout.
type Config struct {
	Level     Level
	Format    string
	Backend   string
	AddSource bool
	Output    io.Writer
}

// DefaultConfig is JSON on slog at info.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "json", Backend: BackendSlog}
}

func (c Config) writer() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

// New builds a Logger for the configured backend.
func New(cfg Config) Logger {
	if cfg.Backend == BackendZap {
		return NewZapLogger(cfg)
	}
	return NewSlogLogger(cfg)
}

var defaultLogger Logger

// SetDefault installs l as the process-wide logger.
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the process-wide logger, a JSON slog logger at info
// until SetDefault is called.
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = NewSlogLogger(DefaultConfig())
	}
	return defaultLogger
}

func Debug(msg string, fields ...Field) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { Default().Error(msg, fields...) }
