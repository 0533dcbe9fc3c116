// Package common holds build metadata and logger setup shared by all
// command-line entrypoints.
package common

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures the process logger.
type LoggingOpts struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// JSON switches to machine-readable output.
	JSON bool

	// Service is attached to every record when non-empty.
	Service string

	// Version is attached to every record when non-empty.
	Version string
}

// SetupLogger creates a tinted terminal logger, or a JSON logger when
// requested.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
