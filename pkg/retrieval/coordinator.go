// Package retrieval runs the per-request retrieval pipeline: it splits the
// requested identifiers into units, keeps a bounded window of them in
// flight on the shared dispatch pool and hands completed volumes to a
// single pulling consumer, surfacing failures only after every good volume
// has been delivered.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/dispatch"
	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/policy"
	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
	"github.com/htrc/data-api/pkg/work"
)

var (
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("coordinator closed")

	// ErrMaxWait is wrapped into the repository failure returned when no
	// unit resolves within the configured max wait.
	ErrMaxWait = errors.New("max wait for unit result exceeded")
)

// State is the lifecycle state of a coordinator.
type State int

const (
	// StateInit means identifiers are set and nothing was dispatched.
	StateInit State = iota

	// StateDispatching means units are being submitted and no volume has
	// been handed out yet.
	StateDispatching

	// StateDraining means the consumer is pulling volumes while the
	// coordinator refills the window.
	StateDraining

	// StateExhausted is terminal: nothing is pending, in flight or unreported.
	StateExhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDispatching:
		return "DISPATCHING"
	case StateDraining:
		return "DRAINING"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Submitter queues units for execution. dispatch.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, unit work.Unit, deliver chan<- dispatch.Result) error
}

// group collects the unit results of one identifier.
type group struct {
	volumeID string
	units    int
	resolved int
	failed   int
	families []store.Family
	content  [][]volume.ContentUnit
}

// Coordinator drives one request. Next is meant to be called from a single
// consumer goroutine; Close may be called from anywhere.
type Coordinator struct {
	requestID string
	ctx       context.Context
	cancel    context.CancelFunc

	pool     Submitter
	splitter *work.Splitter
	tally    *policy.Tally
	maxWait  time.Duration

	ids     []*volume.Identifier
	nextID  int
	pending []work.Unit
	groups  map[int]*group
	ready   []*volume.Reader
	results chan dispatch.Result

	throttle ThrottleState
	agg      *Aggregator
	state    State

	releaseOnce sync.Once
	logger      zerolog.Logger
}

// RequestID returns the ID the coordinator logs and audits under.
func (c *Coordinator) RequestID() string {
	return c.requestID
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	return c.state
}

// Throttle returns a snapshot of the dispatch window counters.
func (c *Coordinator) Throttle() ThrottleState {
	return c.throttle
}

// HasMore reports whether Next can still return a volume or a failure.
func (c *Coordinator) HasMore() bool {
	return !c.throttle.Idle() ||
		c.nextID < len(c.ids) ||
		c.agg.Pending() > 0
}

// Next returns the next completed volume. Once every volume has been
// returned, each call returns one retained failure in the order they were
// recorded. (nil, nil) means the request is exhausted.
func (c *Coordinator) Next(ctx context.Context) (*volume.Reader, error) {
	if c.ctx.Err() != nil && c.state != StateExhausted {
		return nil, failure.RepositoryFailure(c.requestID, ErrClosed)
	}

	if c.state == StateInit {
		c.state = StateDispatching
		c.dispatchWork()
	}

	for {
		c.collect()

		if len(c.ready) > 0 {
			r := c.ready[0]
			c.ready[0] = nil
			c.ready = c.ready[1:]
			c.throttle.Backlog = len(c.ready)
			c.state = StateDraining
			readersYielded.Inc()

			if c.throttle.NeedsRefill() {
				c.dispatchWork()
			}
			return r, nil
		}

		if c.throttle.InFlight > 0 || len(c.pending) > 0 || c.nextID < len(c.ids) {
			c.dispatchWork()
			if c.throttle.InFlight == 0 {
				continue
			}
			if err := c.await(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if fe := c.agg.Pop(); fe != nil {
			c.logger.Debug().
				Err(fe).
				Str("request_id", c.requestID).
				Msg("Surfacing failure")
			return nil, fe
		}

		if c.state != StateExhausted {
			c.state = StateExhausted
			event := c.logger.Info().
				Str("request_id", c.requestID).
				Int("failures", c.agg.Retained()).
				Int("failures_dropped", c.agg.Dropped())
			if c.tally != nil {
				event = event.
					Int("volumes", c.tally.Volumes()).
					Int("pages", c.tally.Pages())
			}
			event.Msg("Request exhausted")
			c.release()
		}
		return nil, nil
	}
}

// Close cancels the request. Units still queued or in flight are skipped
// by the workers and their results discarded.
func (c *Coordinator) Close() {
	c.cancel()
	c.release()
}

func (c *Coordinator) release() {
	c.releaseOnce.Do(func() {
		c.cancel()
		coordinatorsActive.Dec()
	})
}

// dispatchWork fills the window. It is a no-op when the window is full.
// Split failures are recorded, not returned, so one bad identifier does
// not abort the request.
func (c *Coordinator) dispatchWork() {
	for c.throttle.HasCapacity() {
		if len(c.pending) == 0 {
			if c.nextID >= len(c.ids) {
				break
			}
			c.splitNext()
			continue
		}

		u := c.pending[0]
		if err := c.pool.Submit(c.ctx, u, c.results); err != nil {
			// The pool is shutting down or the request was cancelled;
			// nothing left can be dispatched.
			c.logger.Warn().
				Err(err).
				Str("request_id", c.requestID).
				Str("unit", u.String()).
				Msg("Submit failed")
			for _, p := range c.pending {
				c.fold(dispatch.Result{Unit: p, Err: failure.RepositoryFailure(p.VolumeID, err)})
			}
			c.pending = nil
			c.throttle.Pending = 0
			break
		}

		c.pending[0] = work.Unit{}
		c.pending = c.pending[1:]
		c.throttle.Pending = len(c.pending)
		c.throttle.InFlight++
	}
}

func (c *Coordinator) splitNext() {
	idx := c.nextID
	id := c.ids[idx]
	c.nextID++

	units, err := c.splitter.Split(c.ctx, id)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("request_id", c.requestID).
			Str("volume_id", id.VolumeID()).
			Msg("Split failed")
		c.agg.Record(err, id.VolumeID())
		return
	}
	if len(units) == 0 {
		return
	}

	g := &group{
		volumeID: id.VolumeID(),
		units:    len(units),
		families: make([]store.Family, len(units)),
		content:  make([][]volume.ContentUnit, len(units)),
	}
	for i := range units {
		units[i].Group = idx
		units[i].Index = i
		g.families[i] = units[i].Family
	}
	c.groups[idx] = g
	c.pending = append(c.pending, units...)
	c.throttle.Pending = len(c.pending)
}

// collect folds every result already delivered without blocking.
func (c *Coordinator) collect() {
	for {
		select {
		case res := <-c.results:
			c.resolve(res)
		default:
			return
		}
	}
}

// await blocks until one result is delivered.
func (c *Coordinator) await(ctx context.Context) error {
	var timeout <-chan time.Time
	if c.maxWait > 0 {
		timer := time.NewTimer(c.maxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-c.results:
		c.resolve(res)
		return nil
	case <-ctx.Done():
		return failure.RepositoryFailure(c.requestID, ctx.Err())
	case <-c.ctx.Done():
		return failure.RepositoryFailure(c.requestID, ErrClosed)
	case <-timeout:
		maxWaitExpired.Inc()
		c.logger.Error().
			Str("request_id", c.requestID).
			Int("in_flight", c.throttle.InFlight).
			Dur("max_wait", c.maxWait).
			Msg("No unit resolved within max wait")
		c.cancel()
		return failure.RepositoryFailure(c.requestID, ErrMaxWait)
	}
}

// resolve accounts for a delivered result.
func (c *Coordinator) resolve(res dispatch.Result) {
	c.throttle.InFlight--
	c.fold(res)
}

// fold adds a unit outcome to its group and moves the group to the ready
// backlog once every unit has resolved. A group whose units all failed
// produces no reader.
func (c *Coordinator) fold(res dispatch.Result) {
	g, ok := c.groups[res.Unit.Group]
	if !ok {
		return
	}
	g.resolved++
	if res.Err != nil {
		g.failed++
		c.agg.Record(res.Err, res.Unit.VolumeID)
	} else {
		g.content[res.Unit.Index] = res.Content
	}

	c.logger.Debug().
		Str("request_id", c.requestID).
		Str("unit", res.Unit.String()).
		Bool("failed", res.Err != nil).
		Int("in_flight", c.throttle.InFlight).
		Msg("Unit resolved")

	if g.resolved < g.units {
		return
	}
	delete(c.groups, res.Unit.Group)
	if g.failed == g.units {
		return
	}

	var pages, metadata []volume.ContentUnit
	for i, content := range g.content {
		if g.families[i] == store.FamilyMetadata {
			metadata = append(metadata, content...)
		} else {
			pages = append(pages, content...)
		}
	}
	c.ready = append(c.ready, volume.NewReader(g.volumeID, pages, metadata))
	c.throttle.Backlog = len(c.ready)
}
