// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Retry tuning. Zero policy fields fall back to the defaults below.
const (
	DefaultMaxRetries      = 3
	DefaultInitialDelay    = time.Second
	DefaultMaxDelay        = 60 * time.Second
	DefaultExponentialBase = 2.0
	DefaultJitter          = 0.1
)

// Policy tunes a Retryer.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt; an
	// operation that always fails is invoked exactly MaxRetries+1 times.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// ExponentialBase is the backoff multiplier between retries.
	ExponentialBase float64
	// Jitter is the symmetric ± fraction applied to each delay.
	Jitter float64
	// RetryIf decides whether an error is worth retrying. Nil means
	// DefaultRetryable.
	RetryIf func(error) bool
}

// DefaultPolicy returns the standard retry tuning.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      DefaultMaxRetries,
		InitialDelay:    DefaultInitialDelay,
		MaxDelay:        DefaultMaxDelay,
		ExponentialBase: DefaultExponentialBase,
		Jitter:          DefaultJitter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.ExponentialBase < 1 {
		p.ExponentialBase = DefaultExponentialBase
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = DefaultJitter
	}
	if p.RetryIf == nil {
		p.RetryIf = DefaultRetryable
	}
	return p
}

// DefaultRetryable retries timeouts, unavailability, and unclassified
// errors. Breaker rejections, invalid input, rejected queries, budget
// exhaustion, and cancelled contexts never retry: repeating them cannot
// succeed and only adds load.
func DefaultRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case tserr.IsBreakerOpen(err),
		tserr.IsInvalidInput(err),
		tserr.IsNotFound(err),
		tserr.IsConflict(err),
		tserr.IsRejected(err),
		tserr.IsBudgetExceeded(err):
		return false
	default:
		return true
	}
}

// Retryer executes operations with bounded, jittered exponential backoff.
type Retryer struct {
	policy Policy

	// rng, when set, replaces the process-wide random source for jitter.
	// Guarded by rngMu because rand.Rand is not goroutine-safe.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// RetryerOption customizes a Retryer.
type RetryerOption func(*Retryer)

// WithJitterSource replaces the jitter randomness with a seeded source so
// tests can pin backoff delays.
func WithJitterSource(rng *rand.Rand) RetryerOption {
	return func(r *Retryer) {
		r.rng = rng
	}
}

// NewRetryer creates a Retryer. Zero policy fields take the package
// defaults.
func NewRetryer(policy Policy, opts ...RetryerOption) *Retryer {
	r := &Retryer{policy: policy.withDefaults()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, exhausts the retry budget, or hits a
// non-retryable error. The last observed error is returned unwrapped so the
// caller's classification still sees the original failure. Cancelling the
// context aborts promptly, including mid-backoff.
func (r *Retryer) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	attempts := r.policy.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.backoff(attempt - 1)
			metrics.RetriesTotal.WithLabelValues(operation).Inc()
			slog.Debug("retrying operation",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay.String(),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.policy.RetryIf(err) {
			return err
		}
	}

	slog.Warn("retry budget exhausted",
		"operation", operation,
		"attempts", attempts,
		"error", lastErr,
	)
	return lastErr
}

// backoff computes the delay before retry n (n starts at 1):
// min(InitialDelay·Base^(n−1), MaxDelay), then ±Jitter fraction.
func (r *Retryer) backoff(n int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.ExponentialBase, float64(n-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter > 0 {
		// Uniform in [-Jitter, +Jitter).
		d += d * r.policy.Jitter * (2*r.jitterFactor() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (r *Retryer) jitterFactor() float64 {
	if r.rng == nil {
		return rand.Float64()
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64()
}
