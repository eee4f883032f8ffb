package logger

import (
	"log/slog"
	"os"
)

// NewHandler creates the default JSON slog handler. A nil opts selects info level.
func NewHandler(opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
	}

	return slog.NewJSONHandler(os.Stdout, opts)
}
