package logging

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger: JSON on stdout at level, every line tagged
// with attrs (typically app and env). Unknown levels fall back to info; debug
// also records the source position.
func New(level string, attrs ...any) *slog.Logger {
	return NewWithWriter(os.Stdout, level).With(attrs...)
}

// NewWithWriter is New with an explicit destination and no default attributes.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl.Level() == slog.LevelDebug,
	})
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
