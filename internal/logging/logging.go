// Package logging builds the zerolog loggers injected into every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options configure a logger. Zero values mean info level, auto format, stderr.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New builds a logger. The "auto" format writes human-readable output to terminals and JSON
// everywhere else.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)

	var out io.Writer = w
	if console(opts.Format, w) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off", "none":
		return zerolog.Disabled
	}
	if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

func console(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "console", "pretty":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer adapts a logger to an io.Writer so line-oriented output, such as gin's access log,
// ends up in the structured log.
func Writer(logger zerolog.Logger, level zerolog.Level) io.Writer {
	return &lineWriter{logger: logger, level: level}
}

type lineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.WithLevel(w.level).Msg(msg)
	}
	return len(p), nil
}
