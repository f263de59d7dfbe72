package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options selects the level, encoding and destination of a logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a slog.Logger from options. Unknown levels fall back to INFO and
// unknown formats to text.
func New(options Options) *slog.Logger {
	output := options.Output
	if output == nil {
		output = os.Stderr
	}
	handlerOptions := &slog.HandlerOptions{Level: ParseLevel(options.Level)}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(options.Format)) {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, handlerOptions)
	default:
		handler = slog.NewTextHandler(output, handlerOptions)
	}
	return slog.New(handler)
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) onto slog levels.
func ParseLevel(levelString string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelString)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
