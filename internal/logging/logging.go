// Package logging builds the process logger: JSON lines on stdout, and
// optionally a size-rotated copy on disk.
package logging

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      slog.Level
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a JSON logger writing to out and, when opts.File is set, to a
// rotated file. The returned close function flushes and closes the file.
func New(out io.Writer, opts Options) (*slog.Logger, func() error) {
	closeFn := func() error { return nil }

	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // MB
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closeFn = file.Close
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.Level,
	})), closeFn
}
