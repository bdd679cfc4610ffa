// Package gateway wraps every call the retrieval pipeline makes to the
// column store. Transient timeouts are retried with deterministic doubling
// backoff; missing data becomes failure.NotFound and anything else that
// cannot be served becomes failure.RepositoryFailure.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

const opVolumeInfo = "volume_info"

// InfoCache is a shared cache of volume info consulted before the backend.
// cache.Manager implements it.
type InfoCache interface {
	Lookup(ctx context.Context, volumeID string) (volume.Info, error)
	Put(ctx context.Context, info volume.Info) error
}

// Gateway is the storage gateway. It is safe for concurrent use by all
// dispatch workers.
type Gateway struct {
	backend      store.Backend
	cache        InfoCache
	retry        RetryConfig
	fetchTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logger       zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCache puts a volume info cache in front of the backend.
func WithCache(c InfoCache) Option {
	return func(g *Gateway) {
		g.cache = c
	}
}

// WithFetchTimeout bounds every backend attempt. Zero leaves the timeout to
// the driver.
func WithFetchTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.fetchTimeout = d
	}
}

// New creates a gateway over backend.
func New(backend store.Backend, retry RetryConfig, opts ...Option) *Gateway {
	if backend == nil {
		panic("gateway: backend cannot be nil")
	}
	g := &Gateway{
		backend: backend,
		retry:   retry,
		sleep:   sleepContext,
		logger:  logging.NewLogger("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VolumeInfo returns the page count and copyright of a volume.
func (g *Gateway) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	if g.cache != nil {
		info, err := g.cache.Lookup(ctx, volumeID)
		if err == nil {
			return info, nil
		}
		g.logger.Debug().Err(err).Str("volume_id", volumeID).Msg("Volume info cache lookup missed")
	}

	start := time.Now()
	defer func() {
		gatewayCallDuration.WithLabelValues(opVolumeInfo).Observe(time.Since(start).Seconds())
	}()

	var info volume.Info
	err := g.retryWithBackoff(ctx, opVolumeInfo, volumeID, func(ctx context.Context) error {
		var err error
		info, err = g.backend.VolumeInfo(ctx, volumeID)
		return err
	})
	if err != nil {
		return volume.Info{}, g.classify(opVolumeInfo, volumeID, err)
	}
	gatewayCallsTotal.WithLabelValues(opVolumeInfo, "ok").Inc()

	if g.cache != nil {
		if err := g.cache.Put(ctx, info); err != nil {
			g.logger.Warn().Err(err).Str("volume_id", volumeID).Msg("Failed to cache volume info")
		}
	}
	return info, nil
}

// FetchContent returns the named columns of a volume in request order. A
// column that is absent or answered out of order fails the whole call with
// NotFound naming that column.
func (g *Gateway) FetchContent(ctx context.Context, volumeID string, family store.Family, names []string) ([]volume.ContentUnit, error) {
	if len(names) == 0 {
		return nil, nil
	}

	op := string(family)
	start := time.Now()
	defer func() {
		gatewayCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var cols []store.Column
	err := g.retryWithBackoff(ctx, op, volumeID, func(ctx context.Context) error {
		var err error
		cols, err = g.backend.Columns(ctx, volumeID, family, names)
		return err
	})
	if err != nil {
		return nil, g.classify(op, names[0], fmt.Errorf("volume %s: %w", volumeID, err))
	}

	units := make([]volume.ContentUnit, len(names))
	for i, name := range names {
		var cause error
		switch {
		case i >= len(cols):
			cause = ErrMissingColumn
		case cols[i].Name != name:
			cause = fmt.Errorf("%w: got %q", ErrColumnMismatch, cols[i].Name)
		case cols[i].Value == nil:
			cause = ErrMissingColumn
		}
		if cause != nil {
			gatewayCallsTotal.WithLabelValues(op, failure.KindNotFound.String()).Inc()
			return nil, failure.NotFound(name, fmt.Errorf("volume %s: %w", volumeID, cause))
		}
		units[i] = volume.ContentUnit{Name: name, Data: cols[i].Value}
	}

	gatewayCallsTotal.WithLabelValues(op, "ok").Inc()
	return units, nil
}

func (g *Gateway) classify(op, token string, err error) error {
	var fe *failure.Error
	switch {
	case errors.As(err, &fe):
	case errors.Is(err, store.ErrNoData):
		fe = failure.NotFound(token, err)
	default:
		fe = failure.RepositoryFailure(token, err)
	}
	gatewayCallsTotal.WithLabelValues(op, fe.Kind.String()).Inc()
	return fe
}
