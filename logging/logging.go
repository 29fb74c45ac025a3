// Package logging builds the client's slog logger.
package logging

import (
	"fmt"
	"io"
	stlog "log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and an optional rolling log file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	File   string // empty disables the file sink
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(name string) stlog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return stlog.LevelDebug
	case "warn":
		return stlog.LevelWarn
	case "error":
		return stlog.LevelError
	default:
		return stlog.LevelInfo
	}
}

// New returns a logger writing to stdout and, when opts.File is set, to a rolling file.
// The returned closer flushes the file sink.
func New(opts Options) (*stlog.Logger, io.Closer, error) {
	var leveler stlog.LevelVar
	leveler.Set(ParseLevel(opts.Level))

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		w = io.MultiWriter(os.Stdout, lj)
		closer = lj
	}

	handlerOpts := &stlog.HandlerOptions{Level: &leveler}
	var h stlog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = stlog.NewTextHandler(w, handlerOpts)
	case "json":
		h = stlog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return stlog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
