package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/dispatch"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/policy"
	"github.com/htrc/data-api/pkg/volume"
	"github.com/htrc/data-api/pkg/work"
)

// Config holds the per-request retrieval options.
type Config struct {
	// MaxInFlight is the dispatch window: units in flight per request.
	MaxInFlight int

	// TriggerDispatch is the low-water mark that re-arms dispatch after a
	// volume is handed out.
	TriggerDispatch int

	// MaxExceptions caps the failures retained per request.
	MaxExceptions int

	// MaxWait bounds each wait for a unit result. Zero waits forever.
	MaxWait time.Duration

	// Split configures the work splitter.
	Split work.Config
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:     16,
		TriggerDispatch: 4,
		MaxExceptions:   10,
		Split: work.Config{
			MaxBatchSize: 100,
		},
	}
}

// Service creates coordinators. One service is built by the composition
// root and shared by all request handlers.
type Service struct {
	pool     Submitter
	info     work.InfoSource
	checkers *policy.Checkers
	auditor  Auditor
	config   Config
	seq      atomic.Uint64
	logger   zerolog.Logger
}

// NewService creates a service. checkers and auditor may be nil.
func NewService(pool Submitter, info work.InfoSource, checkers *policy.Checkers, auditor Auditor, config Config) *Service {
	if pool == nil || info == nil {
		panic("retrieval: pool and info source are required")
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if config.Split.MaxBatchSize <= 0 {
		config.Split.MaxBatchSize = DefaultConfig().Split.MaxBatchSize
	}
	return &Service{
		pool:     pool,
		info:     info,
		checkers: checkers,
		auditor:  auditor,
		config:   config,
		logger:   logging.NewLogger("retrieval"),
	}
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.config
}

// Checkers returns the policy checkers, possibly nil.
func (s *Service) Checkers() *policy.Checkers {
	return s.checkers
}

type requestIDKey struct{}

// WithRequestID attaches a request ID used by the coordinator for logs and
// audit records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request ID attached to ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// NewCoordinator creates the coordinator of one request. Nothing is
// dispatched until the first call to Next. The coordinator's context is
// derived from ctx; cancelling either stops the request.
func (s *Service) NewCoordinator(ctx context.Context, ids []*volume.Identifier) *Coordinator {
	requestID, ok := RequestIDFrom(ctx)
	if !ok {
		requestID = fmt.Sprintf("req-%d", s.seq.Add(1))
	}

	var tally *policy.Tally
	if s.checkers != nil {
		tally = s.checkers.NewTally()
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		requestID: requestID,
		ctx:       cctx,
		cancel:    cancel,
		pool:      s.pool,
		splitter:  work.NewSplitter(s.info, s.config.Split, tally),
		tally:     tally,
		maxWait:   s.config.MaxWait,
		ids:       ids,
		groups:    make(map[int]*group),
		results:   make(chan dispatch.Result, s.config.MaxInFlight),
		throttle: ThrottleState{
			Window:  s.config.MaxInFlight,
			Trigger: s.config.TriggerDispatch,
		},
		agg:    NewAggregator(requestID, s.config.MaxExceptions, s.auditor, s.logger),
		state:  StateInit,
		logger: s.logger,
	}
	coordinatorsActive.Inc()

	s.logger.Info().
		Str("request_id", requestID).
		Int("identifiers", len(ids)).
		Int("window", s.config.MaxInFlight).
		Msg("Coordinator created")

	return c
}
