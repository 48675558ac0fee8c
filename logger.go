package shutdown

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger describes the ability to write logs. Kept narrow and
// implementation-agnostic so any adapter - including one wrapping the
// standard log package - can satisfy it.
type Logger interface {
	// Info writes an informational log, e.g. a subsystem starting or
	// finishing cleanly.
	Info(text string)

	// Error writes an error log, e.g. a subsystem failure, panic, or a
	// shutdown timeout.
	Error(text string)
}

// ZerologLogger is the default Logger implementation, wrapping a
// zerolog.Logger. Each call writes one message at Info or Error level; the
// subsystem path is part of the message text, not a separate structured
// field.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) ZerologLogger {
	return ZerologLogger{logger: logger}
}

// NewDefaultLogger returns a ZerologLogger writing to stderr in zerolog's
// console-friendly format, suitable as a zero-configuration default.
func NewDefaultLogger() ZerologLogger {
	return ZerologLogger{logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()}
}

func (z ZerologLogger) Info(text string) {
	z.logger.Info().Msg(text)
}

func (z ZerologLogger) Error(text string) {
	z.logger.Error().Msg(text)
}

// nopLogger discards everything; used when a caller explicitly sets a nil
// Logger.
type nopLogger struct{}

func (nopLogger) Info(string)  {}
func (nopLogger) Error(string) {}

func effectiveLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
