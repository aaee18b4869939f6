// Package logging provides the leveled logger used across leaksweep. It is a
// thin wrapper around zerolog so that callers depend on a stable, minimal
// surface instead of the logging library itself.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

type Config struct {
	Level int
}

type Logger struct {
	logger zerolog.Logger
	level  int
}

// NewLogger returns a logger writing human-readable output to stderr.
// Repository scan output itself goes to stdout; keeping diagnostics on
// stderr lets automation consume either stream independently.
func NewLogger(config Config) *Logger {
	return New(config, os.Stderr)
}

func New(config Config, w io.Writer) *Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(zerologLevel(config.Level)).
		With().
		Timestamp().
		Logger()
	return &Logger{logger: zl, level: config.Level}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

// WithBackend returns a child logger tagging every message with the backend
// name, so interleaved multi-backend runs stay readable.
func (l *Logger) WithBackend(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("backend", name).Logger(), level: l.level}
}

func zerologLevel(level int) zerolog.Level {
	switch level {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
