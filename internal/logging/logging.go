// Package logging configures a single process-wide structured logger,
// mirroring the teacher's logging.Configure()/logging.GetLogger() singleton
// pattern: a JSON handler over stdout, timestamp-renamed to RFC3339, with a
// "component" attribute distinguishing subsystems.
package logging

import (
	"log/slog"
	"os"
	"time"

	"src.d10.dev/taxcount/internal/config"
)

var globalLogger *slog.Logger

// Configure (re)builds the global logger from the current config singleton.
// Called once at startup; safe to call again if config changes.
func Configure() {
	cfg := config.GetConfig()
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
		Level: level,
	})
	globalLogger = slog.New(handler).With("component", "main")
}

// GetLogger returns the global logger, lazily configuring it from defaults
// if Configure was never called.
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		Configure()
	}
	return globalLogger
}

// Component returns a logger tagged for one subsystem (e.g. "engine",
// "blockchain", "checkpoint"), so log lines can be filtered by component
// without every package needing its own handler.
func Component(name string) *slog.Logger {
	return GetLogger().With("component", name)
}
