package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/htrc/data-api/pkg/store"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial call).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the doubled delay.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Delays returns the backoff sequence slept between the attempts of a call
// that fails every time: one entry per retry, doubling from InitialDelay and
// capped at MaxDelay.
func (c RetryConfig) Delays() []time.Duration {
	if c.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, c.MaxAttempts-1)
	delay := c.InitialDelay
	for i := 1; i < c.MaxAttempts; i++ {
		out = append(out, delay)
		delay = nextDelay(delay, c.MaxDelay)
	}
	return out
}

func nextDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff runs fn until it succeeds, fails with a non-transient
// error or runs out of attempts. Delays double deterministically; there is
// no jitter.
func (g *Gateway) retryWithBackoff(ctx context.Context, op, token string, fn func(ctx context.Context) error) error {
	cfg := g.retry
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := g.attempt(ctx, fn)
		if err == nil {
			if attempt > 1 {
				g.logger.Info().
					Str("op", op).
					Str("token", token).
					Int("attempt", attempt).
					Msg("Backend call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !store.IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		gatewayRetriesTotal.WithLabelValues(op).Inc()
		gatewayRetryBackoffSeconds.WithLabelValues(op).Observe(delay.Seconds())

		g.logger.Warn().
			Err(err).
			Str("op", op).
			Str("token", token).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying backend call after backoff")

		if err := g.sleep(ctx, delay); err != nil {
			g.logger.Warn().
				Str("op", op).
				Str("token", token).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		delay = nextDelay(delay, cfg.MaxDelay)
	}

	gatewayRetryExhaustedTotal.WithLabelValues(op).Inc()
	g.logger.Error().
		Err(lastErr).
		Str("op", op).
		Str("token", token).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}

// attempt runs one call, bounded by the per-attempt fetch timeout if set.
func (g *Gateway) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.fetchTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()
	return fn(actx)
}
