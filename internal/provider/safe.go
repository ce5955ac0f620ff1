// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trendscout-dev/trendscout/internal/resilience"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Safe wrapper tuning. Zero SafeConfig fields fall back to these; a negative
// retry count disables retries entirely.
const (
	DefaultGenerateTimeout      = 30 * time.Second
	DefaultGenerateRetries      = 3
	DefaultGenerateInitialDelay = 1 * time.Second
	DefaultGenerateMaxDelay     = 15 * time.Second
)

// SafeConfig tunes a SafeProvider.
type SafeConfig struct {
	// GenerateTimeout bounds each generation attempt.
	GenerateTimeout time.Duration

	// MaxRetries is the retry budget. Zero takes the default; negative
	// disables retries.
	MaxRetries int

	// InitialDelay and MaxDelay shape the backoff between retries.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// ExponentialBase is the backoff multiplier; Jitter the symmetric ±
	// fraction applied to each delay. Zero values take the retry package
	// defaults.
	ExponentialBase float64
	Jitter          float64
}

// DefaultSafeConfig returns the standard wrapper tuning.
func DefaultSafeConfig() SafeConfig {
	return SafeConfig{
		GenerateTimeout: DefaultGenerateTimeout,
		MaxRetries:      DefaultGenerateRetries,
		InitialDelay:    DefaultGenerateInitialDelay,
		MaxDelay:        DefaultGenerateMaxDelay,
		ExponentialBase: resilience.DefaultExponentialBase,
		Jitter:          resilience.DefaultJitter,
	}
}

func (c SafeConfig) withDefaults() SafeConfig {
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = DefaultGenerateTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultGenerateRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultGenerateInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultGenerateMaxDelay
	}
	if c.ExponentialBase < 1 {
		c.ExponentialBase = resilience.DefaultExponentialBase
	}
	if c.Jitter <= 0 || c.Jitter > 1 {
		c.Jitter = resilience.DefaultJitter
	}
	return c
}

// SafeProvider shields callers from a flaky LLM vendor. Generate runs the
// same protocol as the safe store wrapper: check the spend budget, ask the
// circuit breaker for admission, run the inner call with a per-attempt
// timeout under the retry budget, record the outcome on the breaker, and
// surface a coded error describing what failed. Successful generations are
// charged against the cost tracker.
type SafeProvider struct {
	inner   Provider
	breaker *resilience.Breaker
	tracker *CostTracker

	retry   *resilience.Retryer
	timeout time.Duration
}

var _ Provider = (*SafeProvider)(nil)

// NewSafeProvider wraps inner with the given breaker. The breaker is shared
// infrastructure obtained from the registry so that every path to the same
// vendor trips together. A nil tracker disables budget enforcement and cost
// accounting.
func NewSafeProvider(inner Provider, breaker *resilience.Breaker, tracker *CostTracker, cfg SafeConfig) *SafeProvider {
	cfg = cfg.withDefaults()

	return &SafeProvider{
		inner:   inner,
		breaker: breaker,
		tracker: tracker,
		retry: resilience.NewRetryer(resilience.Policy{
			MaxRetries:      cfg.MaxRetries,
			InitialDelay:    cfg.InitialDelay,
			MaxDelay:        cfg.MaxDelay,
			ExponentialBase: cfg.ExponentialBase,
			Jitter:          cfg.Jitter,
		}),
		timeout: cfg.GenerateTimeout,
	}
}

func (s *SafeProvider) Name() string { return s.inner.Name() }

func (s *SafeProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	op := s.breaker.Name() + ".generate"

	// An exhausted budget is a caller-side stop, not a vendor fault; it
	// neither consumes breaker admissions nor records an outcome.
	if s.tracker != nil {
		if err := s.tracker.CheckBudget(); err != nil {
			return nil, tserr.With(err, tserr.FieldOperation(op))
		}
	}

	if !s.breaker.Attempt() {
		return nil, tserr.New(tserr.CodeResilienceBreakerOpen,
			fmt.Sprintf("%s rejected: circuit breaker %q is open", op, s.breaker.Name()),
			tserr.FieldDependency(s.breaker.Name()),
			tserr.FieldOperation(op))
	}

	var resp *GenerateResponse
	err := s.retry.Do(ctx, op, func(ctx context.Context) error {
		value, err := resilience.RunWithTimeout(ctx, op, s.timeout, func(ctx context.Context) (any, error) {
			return s.inner.Generate(ctx, req)
		})
		if err != nil {
			return err
		}
		resp, _ = value.(*GenerateResponse)
		return nil
	})
	if err != nil {
		// A request the vendor rejected as malformed is a completed round
		// trip, not a vendor fault; only real failures feed the breaker.
		if tserr.IsInvalidInput(err) {
			s.breaker.RecordSuccess()
		} else {
			s.breaker.RecordFailure()
		}
		return nil, s.describe(err, op)
	}

	s.breaker.RecordSuccess()
	if s.tracker != nil {
		model := resp.Model
		if model == "" {
			model = req.Model
		}
		s.tracker.Charge(model, resp.Usage)
	}
	return resp, nil
}

// describe attaches call context to err, coding unclassified failures as
// vendor upstream failures. Context errors pass through untouched so callers
// can still match them with errors.Is.
func (s *SafeProvider) describe(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if tserr.CodeOf(err) != "" {
		return tserr.With(err,
			tserr.FieldDependency(s.breaker.Name()),
			tserr.FieldOperation(op))
	}
	return tserr.Wrap(err, tserr.CodeProviderUpstreamFailure, fmt.Sprintf("%s failed", op),
		tserr.FieldDependency(s.breaker.Name()),
		tserr.FieldOperation(op))
}
