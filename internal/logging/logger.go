package logging

import (
	"io"
	"log/slog"
	"os"
)

type Logger struct {
	*slog.Logger
}

// New creates a logger writing to output (stdout when nil).
// format is "text" or "json"; level is one of debug/info/warn/error.
func New(format, level string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler).With(slog.String("service", "quickdesk"))}
}

// SetAsDefault makes this logger the process-wide slog default.
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}

// LogError logs an error with context.
func (l *Logger) LogError(msg string, err error, args ...any) {
	allArgs := append([]any{slog.String("error", err.Error())}, args...)
	l.Error(msg, allArgs...)
}
