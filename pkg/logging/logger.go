// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service, when set, is added to every record as the "service" field.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "data-api",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForRequest derives a logger carrying the request ID.
func ForRequest(l zerolog.Logger, requestID string) zerolog.Logger {
	return l.With().Str("request_id", requestID).Logger()
}

// Log Level Guidelines:
//
// Debug: per-unit detail
//   - Unit split, dispatched, resolved
//   - Volume info cache misses
//   - Worker start/stop
//
// Info: request and process lifecycle
//   - Coordinator created, request exhausted
//   - Backend call succeeded after retry
//   - Server and dispatch pool startup/shutdown
//
// Warn: degraded but served
//   - Retry attempts and backoff
//   - Failures dropped over the report cap
//   - Cache errors (fallback to the backend)
//   - Retrieval failure after the archive was started
//
// Error: needs attention
//   - Retries exhausted
//   - Recovered worker panics
//   - Max wait expired
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - request_id: per-request ID
//   - volume_id: raw volume ID
//   - unit: unit rendering, e.g. test.vol1/pages[00000001..00000004]
//   - op: gateway operation (volume_info, pages, metadata)
//   - attempt, backoff: retry state
//   - worker_id: dispatch worker
//   - in_flight: units in flight for the request
