// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package server

import (
	"context"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/search"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

// SearchService answers semantic queries and synthesized summaries over the
// report corpus.
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Synthesize(ctx context.Context, req search.Request) (*search.SynthesizedResponse, error)
}

// HealthChecker aggregates dependency probes into one report.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// CacheAdmin exposes the cache operations the admin endpoints use.
type CacheAdmin interface {
	Stats() cache.Stats
	Clear(ctx context.Context) error
}

// CostReporter exposes LLM usage and spend statistics.
type CostReporter interface {
	Stats() provider.CostStats
}

// BreakerReporter exposes per-dependency circuit breaker snapshots for the
// status document.
type BreakerReporter interface {
	AllStats() map[string]health.BreakerStats
}

// Services holds the dependencies route handlers call into. Every field is
// an interface so tests can substitute fakes.
type Services struct {
	Search   SearchService
	Health   HealthChecker
	Cache    CacheAdmin
	Cost     CostReporter
	Breakers BreakerReporter
}

func (s Services) validate() error {
	switch {
	case s.Search == nil:
		return tserr.New(tserr.CodeServerConfigInvalid, "search service is required")
	case s.Health == nil:
		return tserr.New(tserr.CodeServerConfigInvalid, "health checker is required")
	case s.Cache == nil:
		return tserr.New(tserr.CodeServerConfigInvalid, "cache admin is required")
	case s.Cost == nil:
		return tserr.New(tserr.CodeServerConfigInvalid, "cost reporter is required")
	case s.Breakers == nil:
		return tserr.New(tserr.CodeServerConfigInvalid, "breaker reporter is required")
	}
	return nil
}
