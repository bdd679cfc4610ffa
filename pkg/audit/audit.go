// Package audit records who asked for what and which failures were
// reported back, as a separate zerolog stream.
package audit

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/volume"
)

// Logger writes audit records. A zero Logger discards everything.
type Logger struct {
	logger zerolog.Logger
}

// New creates an audit logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{
		logger: zerolog.New(w).With().Timestamp().Str("stream", "audit").Logger(),
	}
}

// FromLogger derives an audit logger from an existing zerolog logger.
func FromLogger(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Str("stream", "audit").Logger()}
}

// Nop returns an audit logger that discards records.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Request records an accepted request.
func (l *Logger) Request(requestID, remoteAddr, endpoint string, ids []*volume.Identifier) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = id.String()
	}
	l.logger.Info().
		Str("event", "request").
		Str("request_id", requestID).
		Str("remote_addr", remoteAddr).
		Str("endpoint", endpoint).
		Strs("identifiers", tokens).
		Send()
}

// Rejected records a request refused before retrieval started.
func (l *Logger) Rejected(requestID, remoteAddr string, err error) {
	l.logger.Warn().
		Str("event", "rejected").
		Str("request_id", requestID).
		Str("remote_addr", remoteAddr).
		Str("kind", failure.KindOf(err).String()).
		Err(err).
		Send()
}

// Failure records a failure retained for reporting.
func (l *Logger) Failure(requestID string, fe *failure.Error) {
	l.logger.Warn().
		Str("event", "failure").
		Str("request_id", requestID).
		Str("kind", fe.Kind.String()).
		Str("token", fe.Token).
		Err(fe.Err).
		Send()
}

// Completed records the end of a response.
func (l *Logger) Completed(requestID string, volumes int, err error, elapsed time.Duration) {
	ev := l.logger.Info()
	if err != nil {
		ev = l.logger.Warn().Err(err)
	}
	ev.Str("event", "completed").
		Str("request_id", requestID).
		Int("volumes", volumes).
		Dur("duration", elapsed).
		Send()
}
