// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trendscout-dev/trendscout/internal/resilience"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Safe wrapper tuning. Zero SafeConfig fields fall back to these; negative
// retry counts disable retries entirely.
const (
	DefaultCallTimeout      = 10 * time.Second
	DefaultCallRetries      = 3
	DefaultCallInitialDelay = 500 * time.Millisecond
	DefaultCallMaxDelay     = 10 * time.Second

	DefaultCountTimeout = 5 * time.Second
	DefaultCountRetries = 2
)

// SafeConfig tunes a SafeCollection.
type SafeConfig struct {
	// CallTimeout bounds each attempt of Add, Query, Get and
	// DeleteBySource.
	CallTimeout time.Duration

	// MaxRetries is the retry budget for those calls. Zero takes the
	// default; negative disables retries.
	MaxRetries int

	// InitialDelay and MaxDelay shape the backoff between retries.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// ExponentialBase is the backoff multiplier; Jitter the symmetric ±
	// fraction applied to each delay. Zero values take the retry package
	// defaults.
	ExponentialBase float64
	Jitter          float64

	// CountTimeout and CountRetries bound the degraded Count read.
	CountTimeout time.Duration
	CountRetries int
}

// DefaultSafeConfig returns the standard wrapper tuning.
func DefaultSafeConfig() SafeConfig {
	return SafeConfig{
		CallTimeout:     DefaultCallTimeout,
		MaxRetries:      DefaultCallRetries,
		InitialDelay:    DefaultCallInitialDelay,
		MaxDelay:        DefaultCallMaxDelay,
		ExponentialBase: resilience.DefaultExponentialBase,
		Jitter:          resilience.DefaultJitter,
		CountTimeout:    DefaultCountTimeout,
		CountRetries:    DefaultCountRetries,
	}
}

func (c SafeConfig) withDefaults() SafeConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultCallRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultCallInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultCallMaxDelay
	}
	if c.ExponentialBase < 1 {
		c.ExponentialBase = resilience.DefaultExponentialBase
	}
	if c.Jitter <= 0 || c.Jitter > 1 {
		c.Jitter = resilience.DefaultJitter
	}
	if c.CountTimeout <= 0 {
		c.CountTimeout = DefaultCountTimeout
	}
	if c.CountRetries == 0 {
		c.CountRetries = DefaultCountRetries
	}
	return c
}

// SafeCollection shields callers from a flaky storage backend. Every call
// runs the same protocol: ask the circuit breaker for admission, run the
// inner call with a per-attempt timeout under the retry budget, record the
// outcome on the breaker, and surface a coded error describing what failed.
//
// Count is a degraded read: when the backend cannot answer, it logs and
// reports zero instead of failing, so status pages stay up during outages.
type SafeCollection struct {
	inner   Collection
	breaker *resilience.Breaker

	retry      *resilience.Retryer
	countRetry *resilience.Retryer

	callTimeout  time.Duration
	countTimeout time.Duration
}

var _ Collection = (*SafeCollection)(nil)

// NewSafeCollection wraps inner with the given breaker. The breaker is
// shared infrastructure: callers obtain it from the registry so that every
// path to the same backend trips together.
func NewSafeCollection(inner Collection, breaker *resilience.Breaker, cfg SafeConfig) *SafeCollection {
	cfg = cfg.withDefaults()

	return &SafeCollection{
		inner:   inner,
		breaker: breaker,
		retry: resilience.NewRetryer(resilience.Policy{
			MaxRetries:      cfg.MaxRetries,
			InitialDelay:    cfg.InitialDelay,
			MaxDelay:        cfg.MaxDelay,
			ExponentialBase: cfg.ExponentialBase,
			Jitter:          cfg.Jitter,
		}),
		countRetry: resilience.NewRetryer(resilience.Policy{
			MaxRetries:      cfg.CountRetries,
			InitialDelay:    cfg.InitialDelay,
			MaxDelay:        cfg.MaxDelay,
			ExponentialBase: cfg.ExponentialBase,
			Jitter:          cfg.Jitter,
		}),
		callTimeout:  cfg.CallTimeout,
		countTimeout: cfg.CountTimeout,
	}
}

func (w *SafeCollection) Add(ctx context.Context, docs []Document) error {
	_, err := w.execute(ctx, w.opName("add"), w.retry, w.callTimeout, func(ctx context.Context) (any, error) {
		return nil, w.inner.Add(ctx, docs)
	})
	return err
}

func (w *SafeCollection) Query(ctx context.Context, req QueryRequest) ([]QueryResult, error) {
	value, err := w.execute(ctx, w.opName("query"), w.retry, w.callTimeout, func(ctx context.Context) (any, error) {
		return w.inner.Query(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	results, _ := value.([]QueryResult)
	return results, nil
}

func (w *SafeCollection) Get(ctx context.Context, id string) (*Document, error) {
	value, err := w.execute(ctx, w.opName("get"), w.retry, w.callTimeout, func(ctx context.Context) (any, error) {
		return w.inner.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	doc, _ := value.(*Document)
	return doc, nil
}

// Count reports the collection size, degrading to zero when the backend
// cannot answer. It never returns an error: status endpoints call it and
// must stay up while the store is down.
func (w *SafeCollection) Count(ctx context.Context) (int64, error) {
	value, err := w.execute(ctx, w.opName("count"), w.countRetry, w.countTimeout, func(ctx context.Context) (any, error) {
		return w.inner.Count(ctx)
	})
	if err != nil {
		slog.Warn("document count unavailable, reporting zero",
			"dependency", w.breaker.Name(),
			"error", err,
		)
		return 0, nil
	}
	count, _ := value.(int64)
	return count, nil
}

func (w *SafeCollection) DeleteBySource(ctx context.Context, source string) (int64, error) {
	value, err := w.execute(ctx, w.opName("delete_by_source"), w.retry, w.callTimeout, func(ctx context.Context) (any, error) {
		return w.inner.DeleteBySource(ctx, source)
	})
	if err != nil {
		return 0, err
	}
	deleted, _ := value.(int64)
	return deleted, nil
}

// Close releases the inner backend. It bypasses the breaker: shutdown must
// work even when the dependency is failing.
func (w *SafeCollection) Close() error {
	return w.inner.Close()
}

// execute runs one guarded call: breaker admission, then fn with a
// per-attempt timeout under the retry budget, then exactly one outcome
// record on the breaker.
func (w *SafeCollection) execute(ctx context.Context, op string, retry *resilience.Retryer, timeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	if !w.breaker.Attempt() {
		return nil, tserr.New(tserr.CodeResilienceBreakerOpen,
			fmt.Sprintf("%s rejected: circuit breaker %q is open", op, w.breaker.Name()),
			tserr.FieldDependency(w.breaker.Name()),
			tserr.FieldOperation(op))
	}

	var result any
	err := retry.Do(ctx, op, func(ctx context.Context) error {
		value, err := resilience.RunWithTimeout(ctx, op, timeout, fn)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		// A missing document or a rejected input is a completed round
		// trip, not a backend fault; only real failures feed the breaker.
		if tserr.IsNotFound(err) || tserr.IsInvalidInput(err) {
			w.breaker.RecordSuccess()
		} else {
			w.breaker.RecordFailure()
		}
		return nil, w.describe(err, op)
	}

	w.breaker.RecordSuccess()
	return result, nil
}

// describe attaches call context to err, coding unclassified failures as a
// generic store call failure. Context errors pass through untouched so
// callers can still match them with errors.Is.
func (w *SafeCollection) describe(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if tserr.CodeOf(err) != "" {
		return tserr.With(err,
			tserr.FieldDependency(w.breaker.Name()),
			tserr.FieldOperation(op))
	}
	return tserr.Wrap(err, tserr.CodeStoreCallFailure, fmt.Sprintf("%s failed", op),
		tserr.FieldDependency(w.breaker.Name()),
		tserr.FieldOperation(op))
}

func (w *SafeCollection) opName(call string) string {
	return w.breaker.Name() + "." + call
}
