package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "emubot"

// Logger wraps slog.Logger with emubot default fields.
//
// It satisfies the small Debug/Info/Warn/Error logger interfaces declared by
// the engine, runner, catalog and adapter packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the config.
//
// Output "file" appends to cfg.File; if the file cannot be opened the
// logger falls back to stderr and reports the problem as its first entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		output  io.Writer
		openErr error
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			output, openErr = os.Stderr, fmt.Errorf("opening log file %q: %w", cfg.File, err)
			break
		}
		output = f
	default:
		output = os.Stdout
	}

	logger := NewWithWriter(output, cfg.Level, cfg.Format, version)
	if openErr != nil {
		logger.Warn("log file unavailable, using stderr", "error", openErr)
	}
	return logger
}

// NewWithWriter builds a Logger that writes to w. Tests and the CLI use it
// to capture or redirect output.
func NewWithWriter(w io.Writer, level, format, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
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

// With returns a new Logger with additional default attributes.
//
//	engineLogger := logger.With("component", "engine")
//	engineLogger.Info("started") // Includes component=engine
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
