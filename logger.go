package session

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger returns a logger that writes to stdout with colorized output if
// stdout is a terminal.
func NewLogger() *slog.Logger {
	return NewLoggerAt(slog.LevelInfo)
}

// NewLoggerAt is NewLogger with an explicit minimum level. Sample-level
// detail logs at debug; session lifecycle events at info and above.
func NewLoggerAt(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
}

// NewJSONLogger returns a logger that writes to stdout in JSON format.
func NewJSONLogger() *slog.Logger {
	return NewJSONLoggerAt(slog.LevelInfo)
}

// NewJSONLoggerAt is NewJSONLogger with an explicit minimum level.
func NewJSONLoggerAt(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
