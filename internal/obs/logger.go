package obs

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger creates a slog logger writing to stderr, colored for dev and
// local environments and JSON otherwise. Stdout is left to the chat view.
func NewLogger(env string, level slog.Level) *slog.Logger {
	return newLogger(env, level, os.Stderr)
}

func newLogger(env string, level slog.Level, writer io.Writer) *slog.Logger {
	if env == "dev" || env == "local" {
		handler := tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
		return slog.New(handler)
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler)
}
