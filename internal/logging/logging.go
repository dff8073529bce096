// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options controls Setup
type Options struct {
	Debug bool
	// File receives JSON records in addition to the text output when set.
	File string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Setup installs the default logger. The returned close function releases
// the log file, if any.
func Setup(opts Options) (func() error, error) {
	logger, closer, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

// New builds a logger writing text to stdout and, when a file is
// configured, JSON to that file.
func New(opts Options) (*slog.Logger, func() error, error) {
	handlerOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if opts.Debug {
		handlerOpts.Level = slog.LevelDebug
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	text := slog.NewTextHandler(stdout, handlerOpts)

	if opts.File == "" {
		return slog.New(text), func() error { return nil }, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	logger := slog.New(slogmulti.Fanout(
		text,
		slog.NewJSONHandler(f, handlerOpts),
	))
	return logger, f.Close, nil
}
