package core

import (
	"io"
	"log/slog"
	"os"

	"github.com/AgenticGames/miningspice/internal/config"
)

// NewLogger builds the engine's structured logger from configuration.
// A nil writer logs to stderr.
func NewLogger(cfg config.Logging, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
