package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// ParseLevel maps a config value to a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Reporter receives failures that the caller has decided not to propagate
// any further, e.g. a best-effort file-open or a failed HTTP request.
type Reporter interface {
	Error(msg string, err error, kv ...any)
}

// Logger is a leveled key/value logger. It is created once by main and
// passed to the components that need it.
type Logger struct {
	sl *slog.Logger
}

// New returns a Logger writing text lines to w at or above level.
func New(w io.Writer, level Level) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{sl: slog.New(h)}
}

// NewStderr is New(os.Stderr, level).
func NewStderr(level Level) *Logger {
	return New(os.Stderr, level)
}

// Discard returns a Logger that drops everything; handy in tests.
func Discard() *Logger {
	return New(io.Discard, LevelError)
}

// FromSlog wraps an existing slog.Logger.
func FromSlog(sl *slog.Logger) *Logger {
	return &Logger{sl: sl}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.sl
}

// With returns a Logger that adds kv to every line.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sl: l.sl.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.sl.Debug(msg, kv...)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.sl.Info(msg, kv...)
}

func (l *Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	l.sl.Error(msg, extended...)
}
