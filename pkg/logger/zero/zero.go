// Package zero adapts a zerolog.Logger to the SDK logger interface.
package zero

import (
	"io"

	"github.com/rs/zerolog"
)

type Logger struct {
	logger zerolog.Logger
}

// New builds a Logger writing to w with timestamps attached.
func New(w io.Writer) *Logger {
	return &Logger{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Wrap reuses an existing zerolog.Logger.
func Wrap(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error().Fields(args).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug().Fields(args).Msg(msg)
}
