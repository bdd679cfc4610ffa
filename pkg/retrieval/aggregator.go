package retrieval

import (
	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/failure"
)

// Auditor receives every retained failure. audit.Logger implements it.
type Auditor interface {
	Failure(requestID string, fe *failure.Error)
}

// Aggregator collects the failures of one request. It retains at most
// limit of them, in first-recorded order, and drops the rest.
type Aggregator struct {
	requestID string
	limit     int
	auditor   Auditor
	records   []*failure.Error
	next      int
	dropped   int
	logger    zerolog.Logger
}

// NewAggregator creates an aggregator retaining up to limit failures. A nil
// auditor is allowed.
func NewAggregator(requestID string, limit int, auditor Auditor, logger zerolog.Logger) *Aggregator {
	if limit < 0 {
		limit = 0
	}
	return &Aggregator{
		requestID: requestID,
		limit:     limit,
		auditor:   auditor,
		logger:    logger,
	}
}

// Record classifies err and retains it if the cap allows.
func (a *Aggregator) Record(err error, token string) {
	if err == nil {
		return
	}
	fe := failure.As(err, token)
	if len(a.records) >= a.limit {
		a.dropped++
		exceptionsDropped.Inc()
		a.logger.Warn().
			Err(fe).
			Str("request_id", a.requestID).
			Int("dropped", a.dropped).
			Msg("Dropping failure over report cap")
		return
	}
	a.records = append(a.records, fe)
	exceptionsRecorded.WithLabelValues(fe.Kind.String()).Inc()
	if a.auditor != nil {
		a.auditor.Failure(a.requestID, fe)
	}
}

// Pop returns the earliest unconsumed failure, or nil.
func (a *Aggregator) Pop() *failure.Error {
	if a.next >= len(a.records) {
		return nil
	}
	fe := a.records[a.next]
	a.records[a.next] = nil
	a.next++
	return fe
}

// Pending returns the number of unconsumed failures.
func (a *Aggregator) Pending() int {
	return len(a.records) - a.next
}

// Retained returns the number of failures retained.
func (a *Aggregator) Retained() int {
	return len(a.records)
}

// Dropped returns the number of failures dropped over the cap.
func (a *Aggregator) Dropped() int {
	return a.dropped
}
