package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger writing to stderr
func InitLogger(level, format string) {
	InitLoggerWithOutput(level, format, os.Stderr)
}

// InitLoggerWithOutput initializes the global logger writing to out.
// Results go to stdout, so logs default to stderr.
func InitLoggerWithOutput(level, format string, out io.Writer) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Configure output format
	output := out
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	log.Debug().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("Logger initialized")
}

// NewLogger creates a new logger with a component name
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewRunLogger creates a logger for one optimization run
func NewRunLogger(runID string, method string) zerolog.Logger {
	return log.With().
		Str("component", "optimizer").
		Str("run_id", runID).
		Str("method", method).
		Logger()
}
