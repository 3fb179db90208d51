// ABOUTME: zerolog backend for the Logger interface
// ABOUTME: Used by the CLI for json and console log formats
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l}
}

// NewJSONLogger writes JSON lines to w, tagged with the component name.
func NewJSONLogger(w io.Writer, component string, debug bool) *ZerologLogger {
	return NewZerologLogger(leveled(zerolog.New(w), component, debug))
}

// NewConsoleLogger writes human-readable lines to w.
func NewConsoleLogger(w io.Writer, component string, debug bool) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return NewZerologLogger(leveled(zerolog.New(output), component, debug))
}

func leveled(l zerolog.Logger, component string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return l.Level(level).With().Timestamp().Str("component", component).Logger()
}

func (z *ZerologLogger) Debug(format string, args ...interface{}) {
	z.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Info(format string, args ...interface{}) {
	z.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Warning(format string, args ...interface{}) {
	z.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Error(format string, args ...interface{}) {
	z.logger.Error().Msg(fmt.Sprintf(format, args...))
}

var _ Logger = (*ZerologLogger)(nil)
