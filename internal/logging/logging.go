// Package logging configures the structured logger shared by the
// indexing driver and the hybrid searcher. It uses log/slog throughout,
// matching the teacher's choice of the standard library logger over a
// third-party logging package.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// FilePath is where logs are written. Empty disables file logging.
	FilePath string
	// MaxSizeMB is the size threshold that triggers rotation.
	MaxSizeMB int
	// MaxFiles caps the number of retained rotated files.
	MaxFiles int
	// WriteToStderr additionally mirrors logs to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for a long-running indexing
// or search process.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup builds a JSON slog.Logger per cfg and returns a cleanup function
// that flushes and closes the underlying file, if any.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		if cfg.WriteToStderr {
			output = io.MultiWriter(writer, os.Stderr)
		} else {
			output = writer
		}
		cleanup = func() {
			_ = writer.Close()
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

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
