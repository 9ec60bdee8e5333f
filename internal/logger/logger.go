// Package logger builds the zerolog logger used by the command line tools.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Options selects the log level and destinations.
type Options struct {
	// Level is a zerolog level name: debug, info, warn, error
	Level string

	// JSON disables the human readable console format
	JSON bool

	// File additionally sends log records to a rotating log file
	File    string
	MaxSize int // megabytes
	MaxAge  int // days

	// Out is the console destination, stderr when nil
	Out io.Writer
}

// New returns a logger for the given options and a closer for the log file.
// The closer is a no-op when no file is configured.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  opts.MaxSize,
			MaxAge:   opts.MaxAge,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
