// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/search"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

func (s *Server) registerRoutes() {
	// Search endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Search trend reports",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-synthesized",
		Method:      http.MethodPost,
		Path:        "/api/v1/search/synthesized",
		Summary:     "Search with an LLM-synthesized answer",
		Tags:        []string{"search"},
	}, s.handleSearchSynthesized)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List report categories",
		Tags:        []string{"search"},
	}, s.handleListCategories)

	// System endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Service status and circuit breakers",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	// Cache endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-cache-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/cache/stats",
		Summary:     "Cache statistics",
		Tags:        []string{"cache"},
	}, s.handleCacheStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-cache",
		Method:      http.MethodDelete,
		Path:        "/api/v1/cache",
		Summary:     "Clear the search cache",
		Tags:        []string{"cache"},
	}, s.handleClearCache)

	// LLM endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-llm-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/llm/stats",
		Summary:     "LLM usage and spend",
		Tags:        []string{"llm"},
	}, s.handleLLMStats)

	// Prometheus scrape endpoint, outside the huma API.
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())
}

// --- Request/Response types for huma ---

type searchInput struct {
	Body search.Request
}
type searchOutput struct {
	Body search.Response
}

type synthesizedSearchOutput struct {
	Body search.SynthesizedResponse
}

type categoriesOutput struct {
	Body struct {
		Categories []search.Category `json:"categories"`
	}
}

type statusOutput struct {
	Body struct {
		Service         string                         `json:"service"`
		Version         string                         `json:"version"`
		UptimeSeconds   float64                        `json:"uptime_seconds"`
		CircuitBreakers map[string]health.BreakerStats `json:"circuit_breakers"`
	}
}

type healthOutput struct {
	Status int
	Body   health.Report
}

type cacheStatsOutput struct {
	Body cache.Stats
}

type clearCacheOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

type llmStatsOutput struct {
	Body provider.CostStats
}

// --- Handlers ---

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	resp, err := s.services.Search.Search(ctx, input.Body)
	if err != nil {
		return nil, serviceError(err)
	}
	return &searchOutput{Body: *resp}, nil
}

func (s *Server) handleSearchSynthesized(ctx context.Context, input *searchInput) (*synthesizedSearchOutput, error) {
	resp, err := s.services.Search.Synthesize(ctx, input.Body)
	if err != nil {
		return nil, serviceError(err)
	}
	return &synthesizedSearchOutput{Body: *resp}, nil
}

func (s *Server) handleListCategories(_ context.Context, _ *struct{}) (*categoriesOutput, error) {
	out := &categoriesOutput{}
	out.Body.Categories = search.Categories()
	return out, nil
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Service = "trendscout"
	out.Body.Version = s.cfg.Version
	out.Body.UptimeSeconds = time.Since(s.startTime).Seconds()
	out.Body.CircuitBreakers = s.services.Breakers.AllStats()
	return out, nil
}

// handleHealth serves the aggregate health report. An unhealthy report is
// served with 503 so load balancers stop routing to this instance; degraded
// still answers 200 because the service can serve from cache and store.
func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	report := s.services.Health.Check(ctx)

	out := &healthOutput{Body: report}
	if report.Status == health.StatusUnhealthy {
		out.Status = http.StatusServiceUnavailable
	}
	return out, nil
}

func (s *Server) handleCacheStats(_ context.Context, _ *struct{}) (*cacheStatsOutput, error) {
	return &cacheStatsOutput{Body: s.services.Cache.Stats()}, nil
}

func (s *Server) handleClearCache(ctx context.Context, _ *struct{}) (*clearCacheOutput, error) {
	if err := s.services.Cache.Clear(ctx); err != nil {
		return nil, serviceError(err)
	}
	out := &clearCacheOutput{}
	out.Body.Success = true
	out.Body.Message = "cache cleared"
	return out, nil
}

func (s *Server) handleLLMStats(_ context.Context, _ *struct{}) (*llmStatsOutput, error) {
	return &llmStatsOutput{Body: s.services.Cost.Stats()}, nil
}

// serviceError maps a service error onto the HTTP status its code carries,
// preserving the message for the problem document.
func serviceError(err error) error {
	return huma.NewError(tserr.HTTPStatus(err), err.Error())
}
