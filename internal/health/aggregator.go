// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package health aggregates dependency probes into a single service health
// report. Probes run concurrently, each under its own timeout, and the
// aggregate never short-circuits: every registered dependency appears in the
// report. Circuit breaker state folds in as partial degradation so an open
// breaker surfaces as DEGRADED instead of flapping the whole service
// unhealthy.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trendscout-dev/trendscout/internal/resilience"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

// DefaultProbeTimeout bounds each probe so one hung dependency cannot stall
// the whole report.
const DefaultProbeTimeout = 5 * time.Second

// breakersDetail is the reserved report key for the breaker scan.
const breakersDetail = "circuit_breakers"

// Probe checks one dependency and returns a payload for the report. A nil
// error marks the dependency healthy.
type Probe func(ctx context.Context) (any, error)

// Aggregator runs registered probes and folds the results, together with
// circuit breaker state, into a health.Report.
type Aggregator struct {
	mu           sync.RWMutex
	probes       map[string]Probe
	probeTimeout time.Duration
	breakers     *resilience.Registry
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithProbeTimeout overrides the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.probeTimeout = d
		}
	}
}

// NewAggregator creates an aggregator. breakers may be nil when no registry
// should fold into the report.
func NewAggregator(breakers *resilience.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		probes:       make(map[string]Probe),
		probeTimeout: DefaultProbeTimeout,
		breakers:     breakers,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a named probe. Registering the same name again replaces the
// earlier probe. The name "circuit_breakers" is reserved for the breaker
// scan.
func (a *Aggregator) Register(name string, probe Probe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes[name] = probe
}

// Check runs every registered probe concurrently and returns the aggregate
// report. Any probe failure makes the report UNHEALTHY; otherwise any open
// circuit breaker makes it DEGRADED with the open names listed under the
// circuit_breakers detail.
func (a *Aggregator) Check(ctx context.Context) health.Report {
	a.mu.RLock()
	probes := make(map[string]Probe, len(a.probes))
	for name, probe := range a.probes {
		probes[name] = probe
	}
	timeout := a.probeTimeout
	a.mu.RUnlock()

	var (
		detailsMu sync.Mutex
		details   = make(map[string]health.ProbeResult, len(probes)+1)
		unhealthy bool
	)

	var g errgroup.Group
	for name, probe := range probes {
		g.Go(func() error {
			result, err := runProbe(ctx, name, timeout, probe)

			detailsMu.Lock()
			defer detailsMu.Unlock()
			if err != nil {
				details[name] = health.ProbeResult{Status: health.ProbeError, Error: err.Error()}
				unhealthy = true
				return nil
			}
			details[name] = health.ProbeResult{Status: health.ProbeOK, Result: result}
			return nil
		})
	}
	_ = g.Wait()

	status := health.StatusHealthy
	if a.breakers != nil {
		if open := a.breakers.OpenBreakers(); len(open) > 0 {
			status = health.StatusDegraded
			details[breakersDetail] = health.ProbeResult{
				Status: health.ProbeWarning,
				Result: map[string]any{"open": open},
			}
		}
	}
	if unhealthy {
		status = health.StatusUnhealthy
	}

	if status != health.StatusHealthy {
		slog.Warn("health check degraded", "status", string(status))
	}

	return health.Report{
		Status:    status,
		Details:   details,
		CheckedAt: time.Now().UTC(),
	}
}

// runProbe bounds a single probe by the timeout and converts panics into
// probe failures so one bad dependency check cannot take the process down.
func runProbe(ctx context.Context, name string, timeout time.Duration, probe Probe) (any, error) {
	return resilience.RunWithTimeout(ctx, "health."+name, timeout,
		func(ctx context.Context) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					err = fmt.Errorf("probe panicked: %v", r)
				}
			}()
			return probe(ctx)
		})
}
