package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog.Level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w. format "json" selects the JSON handler,
// anything else the text handler. Every record carries a service attribute when
// service is non-empty.
func NewLogger(w io.Writer, format, level, service string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// SetupLogger installs a stdout logger as the slog default, so package-level
// slog.Info/Warn/Error calls across the registry use the configured format and level.
func SetupLogger(format, level, service string) {
	slog.SetDefault(NewLogger(os.Stdout, format, level, service))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
