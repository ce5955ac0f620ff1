// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package resilience implements the fault-isolation primitives that guard
// every unreliable dependency: circuit breakers, bounded retries with
// jittered exponential backoff, and hard call timeouts. The pieces carry no
// knowledge of what they protect and compose explicitly — a wrapper gates on
// Breaker.Attempt, runs the call through Retryer.Do and RunWithTimeout, then
// reports the outcome back via RecordSuccess or RecordFailure.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

// State is the circuit breaker state. The numeric order matches the value
// exported on the breaker state gauge.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker tuning. Zero values fall back to the defaults below.
const (
	DefaultFailureThreshold  = 5
	DefaultSuccessThreshold  = 2
	DefaultOpenTimeout       = 60 * time.Second
	DefaultHalfOpenMaxProbes = 3
)

// Config tunes a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// that trips the breaker OPEN.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in HALF_OPEN
	// that closes the breaker again.
	SuccessThreshold int
	// OpenTimeout is how long an OPEN breaker rejects calls before the next
	// Attempt is admitted as a recovery probe.
	OpenTimeout time.Duration
	// HalfOpenMaxProbes caps the number of in-flight probe calls while
	// HALF_OPEN.
	HalfOpenMaxProbes int
}

// DefaultConfig returns the standard breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  DefaultFailureThreshold,
		SuccessThreshold:  DefaultSuccessThreshold,
		OpenTimeout:       DefaultOpenTimeout,
		HalfOpenMaxProbes: DefaultHalfOpenMaxProbes,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = DefaultHalfOpenMaxProbes
	}
	return c
}

// Breaker is a per-dependency circuit breaker. State changes only happen
// inside Attempt, RecordSuccess, and RecordFailure under the mutex; there is
// no background timer. An OPEN breaker that sees no traffic never probes on
// its own — the first caller after the open window pays the probe.
type Breaker struct {
	name string
	cfg  Config

	mu              sync.Mutex
	state           State
	failureCount    int // consecutive failures while CLOSED
	successCount    int // consecutive successes while HALF_OPEN
	inFlightProbes  int // admitted but unrecorded HALF_OPEN probes
	lastStateChange time.Time
	lastFailure     time.Time
	totalCalls      int64
	totalSuccesses  int64
	totalFailures   int64

	nowFunc func() time.Time
}

// NewBreaker creates a breaker for the named dependency. Zero config fields
// take the package defaults.
func NewBreaker(name string, cfg Config) *Breaker {
	b := &Breaker{
		name:    name,
		cfg:     cfg.withDefaults(),
		state:   StateClosed,
		nowFunc: time.Now,
	}
	b.lastStateChange = b.nowFunc()
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// SetNowFunc overrides the clock used for open-window checks. Intended for
// tests.
func (b *Breaker) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFunc = now
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Attempt reports whether a call may proceed. CLOSED always admits. OPEN
// rejects until the open window has elapsed; the first Attempt at or after
// that instant flips the breaker HALF_OPEN and is admitted as a probe.
// HALF_OPEN admits while fewer than HalfOpenMaxProbes probes are in flight.
// Rejected calls never count toward the call totals.
func (b *Breaker) Attempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.nowFunc().Sub(b.lastFailure) < b.cfg.OpenTimeout {
			metrics.BreakerRejections.WithLabelValues(b.name).Inc()
			return false
		}
		b.transitionLocked(StateHalfOpen)
		b.inFlightProbes = 1
		return true

	case StateHalfOpen:
		if b.inFlightProbes < b.cfg.HalfOpenMaxProbes {
			b.inFlightProbes++
			return true
		}
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return false

	default:
		return false
	}
}

// RecordSuccess reports a successful call. In CLOSED it clears the failure
// streak; in HALF_OPEN it frees the probe slot and closes the breaker once
// SuccessThreshold consecutive probes have succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	b.totalSuccesses++

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		if b.inFlightProbes > 0 {
			b.inFlightProbes--
		}
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	case StateOpen:
		// Late record from a call admitted under an earlier state; totals
		// are updated above, the open window is untouched.
	}
}

// RecordFailure reports a failed call. In CLOSED it trips the breaker OPEN
// at FailureThreshold consecutive failures; in HALF_OPEN a single failure
// reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	b.totalFailures++
	b.lastFailure = b.nowFunc()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateOpen:
		// Late record from a call admitted under an earlier state. The open
		// window is measured from the last failure, so this extends it.
	}
}

// State returns the stored state. Reads do not trigger the lazy
// OPEN→HALF_OPEN transition; only Attempt does.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a point-in-time snapshot in the wire shape served by the
// status endpoint.
func (b *Breaker) Stats() health.BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return health.BreakerStats{
		State:               b.state.String(),
		TotalCalls:          b.totalCalls,
		TotalSuccesses:      b.totalSuccesses,
		TotalFailures:       b.totalFailures,
		CurrentFailureCount: b.failureCount,
		LastStateChange:     b.lastStateChange,
		Config: health.BreakerConfig{
			FailureThreshold:   b.cfg.FailureThreshold,
			SuccessThreshold:   b.cfg.SuccessThreshold,
			OpenTimeoutSeconds: b.cfg.OpenTimeout.Seconds(),
			HalfOpenMaxProbes:  b.cfg.HalfOpenMaxProbes,
		},
	}
}

// transitionLocked moves the breaker to a new state, resetting the windowed
// counters and stamping the change. Callers must hold b.mu.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.failureCount = 0
	b.successCount = 0
	b.inFlightProbes = 0
	b.lastStateChange = b.nowFunc()

	metrics.BreakerTransitions.WithLabelValues(b.name, from.String(), to.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))

	if to == StateOpen {
		slog.Warn("circuit breaker opened",
			"dependency", b.name,
			"from", from.String(),
			"open_timeout", b.cfg.OpenTimeout.String(),
		)
		return
	}
	slog.Info("circuit breaker state change",
		"dependency", b.name,
		"from", from.String(),
		"to", to.String(),
	)
}
