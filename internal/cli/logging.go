package cli

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/mahavishnu/mahavishnu/internal/config"
)

// setupLogging installs the process-wide slog default from the log
// config. Format "auto" picks text on a terminal and JSON otherwise.
func setupLogging(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default: // auto
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
