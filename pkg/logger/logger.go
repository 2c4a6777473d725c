// Package logger defines the logging interface used across the SDK.
//
// The default implementation is backed by log/slog so that callers can plug in
// any slog.Handler. A zerolog-backed implementation lives in the zero
// subpackage for applications already standardized on zerolog.
package logger

import "log/slog"

// Logger accepts a message followed by alternating key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type SlogLogger struct {
	logger *slog.Logger
}

// New wraps a slog.Handler into a Logger.
func New(h slog.Handler) *SlogLogger {
	return &SlogLogger{logger: slog.New(h)}
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Nop discards everything. It is the fallback when no logger is configured.
type Nop struct{}

func (Nop) Error(string, ...any) {}
func (Nop) Warn(string, ...any) {}
func (Nop) Info(string, ...any) {}
func (Nop) Debug(string, ...any) {}
