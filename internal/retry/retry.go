// Package retry wraps upstream calls with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy holds the backoff parameters shared by all upstream clients.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	logger          zerolog.Logger
}

// DefaultPolicy returns the standard client policy: 3 attempts, 1s initial
// delay doubling up to 10s, with jitter.
func DefaultPolicy(logger zerolog.Logger) *Policy {
	return NewPolicy(3, 1*time.Second, 10*time.Second, logger)
}

// NewPolicy returns a policy with explicit parameters.
func NewPolicy(maxAttempts uint64, initial, max time.Duration, logger zerolog.Logger) *Policy {
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: initial,
		MaxInterval:     max,
		logger:          logger.With().Str("component", "retry").Logger(),
	}
}

// Do runs fn, retrying transient failures until the attempt budget is spent
// or the context is cancelled. fn signals a non-retryable failure by
// returning backoff.Permanent(err); such errors abort immediately.
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0.3

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		p.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("next_retry_in", next).
			Msg("Transient upstream failure, retrying")
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, p.MaxAttempts-1), ctx)
	return backoff.RetryNotify(fn, wrapped, notify)
}

// Permanent marks err as non-retryable. Re-exported so that callers do not
// import the backoff package directly.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
