package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
	"github.com/htrc/data-api/pkg/work"
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("dispatch pool closed")

// Fetcher fetches the content of one unit. gateway.Gateway implements it.
type Fetcher interface {
	FetchContent(ctx context.Context, volumeID string, family store.Family, names []string) ([]volume.ContentUnit, error)
}

// Result is the outcome of one unit: its content, or a classified
// *failure.Error.
type Result struct {
	Unit    work.Unit
	Content []volume.ContentUnit
	Err     error
}

// Config holds pool configuration.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize is the capacity of the shared queue. Submit blocks when
	// it is full.
	QueueSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   8,
		QueueSize: 1024,
	}
}

type task struct {
	ctx     context.Context
	unit    work.Unit
	deliver chan<- Result
	poison  bool
	queued  time.Time
}

// Pool is a fixed-size worker pool shared by all requests.
type Pool struct {
	fetcher Fetcher
	queue   chan task
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewPool starts the workers.
func NewPool(fetcher Fetcher, config Config) *Pool {
	if fetcher == nil {
		panic("dispatch: fetcher cannot be nil")
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	p := &Pool{
		fetcher: fetcher,
		queue:   make(chan task, config.QueueSize),
		workers: config.Workers,
		logger:  logging.NewLogger("dispatch"),
	}

	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	poolWorkers.Add(float64(config.Workers))

	p.logger.Info().
		Int("workers", config.Workers).
		Int("queue_size", config.QueueSize).
		Msg("Dispatch pool started")

	return p
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues unit for execution. The result is sent on deliver unless
// ctx is done by then. Submit blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, unit work.Unit, deliver chan<- Result) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	t := task{ctx: ctx, unit: unit, deliver: deliver, queued: time.Now()}
	select {
	case p.queue <- t:
		poolQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting units, sends one poison task per worker and
// waits for the workers to exit or ctx to be done. Units queued before
// Shutdown are still executed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		select {
		case p.queue <- task{poison: true}:
		case <-ctx.Done():
			return fmt.Errorf("dispatch shutdown: %w", ctx.Err())
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Dispatch pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch shutdown: %w", ctx.Err())
	}
}

// worker processes units from the queue until it receives a poison task.
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	defer poolWorkers.Dec()

	processed := 0
	for t := range p.queue {
		if t.poison {
			p.logger.Debug().
				Int("worker_id", workerID).
				Int("units_processed", processed).
				Msg("Worker stopping (poison)")
			return
		}
		poolQueueDepth.Dec()
		poolQueueWait.Observe(time.Since(t.queued).Seconds())
		p.process(workerID, t)
		processed++
	}
}

func (p *Pool) process(workerID int, t task) {
	if t.ctx.Err() != nil {
		poolUnitsTotal.WithLabelValues("cancelled").Inc()
		p.logger.Debug().
			Int("worker_id", workerID).
			Str("unit", t.unit.String()).
			Msg("Skipping unit of cancelled request")
		return
	}

	start := time.Now()
	res := p.execute(workerID, t)
	poolUnitDuration.Observe(time.Since(start).Seconds())

	if t.ctx.Err() != nil {
		poolUnitsTotal.WithLabelValues("cancelled").Inc()
		return
	}

	if res.Err != nil {
		poolUnitsTotal.WithLabelValues(failure.KindOf(res.Err).String()).Inc()
	} else {
		poolUnitsTotal.WithLabelValues("ok").Inc()
	}

	select {
	case t.deliver <- res:
	case <-t.ctx.Done():
		poolUnitsTotal.WithLabelValues("cancelled").Inc()
	}
}

// execute runs one fetch. A panic fails the unit, not the worker.
func (p *Pool) execute(workerID int, t task) (res Result) {
	res.Unit = t.unit
	defer func() {
		if r := recover(); r != nil {
			poolPanicsTotal.Inc()
			p.logger.Error().
				Int("worker_id", workerID).
				Str("unit", t.unit.String()).
				Interface("panic", r).
				Msg("Worker recovered from panic")
			res.Content = nil
			res.Err = failure.RepositoryFailure(t.unit.VolumeID, fmt.Errorf("panic: %v", r))
		}
	}()

	content, err := p.fetcher.FetchContent(t.ctx, t.unit.VolumeID, t.unit.Family, t.unit.Names)
	if err != nil {
		res.Err = failure.As(err, t.unit.VolumeID)
		p.logger.Debug().
			Err(err).
			Int("worker_id", workerID).
			Str("unit", t.unit.String()).
			Msg("Unit failed")
		return res
	}
	res.Content = content
	return res
}
