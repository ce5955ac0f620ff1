// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/search"
	"github.com/trendscout-dev/trendscout/internal/server"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

type fakeSearch struct {
	searchFn func(ctx context.Context, req search.Request) (*search.Response, error)
	synthFn  func(ctx context.Context, req search.Request) (*search.SynthesizedResponse, error)
}

func (f *fakeSearch) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return f.searchFn(ctx, req)
}

func (f *fakeSearch) Synthesize(ctx context.Context, req search.Request) (*search.SynthesizedResponse, error) {
	return f.synthFn(ctx, req)
}

type fakeHealth struct{ report health.Report }

func (f *fakeHealth) Check(context.Context) health.Report { return f.report }

type fakeCache struct {
	stats    cache.Stats
	clearErr error
	cleared  bool
}

func (f *fakeCache) Stats() cache.Stats { return f.stats }

func (f *fakeCache) Clear(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	return nil
}

type fakeCost struct{ stats provider.CostStats }

func (f *fakeCost) Stats() provider.CostStats { return f.stats }

type fakeBreakers struct{ stats map[string]health.BreakerStats }

func (f *fakeBreakers) AllStats() map[string]health.BreakerStats { return f.stats }

func testServices() server.Services {
	return server.Services{
		Search: &fakeSearch{
			searchFn: func(_ context.Context, req search.Request) (*search.Response, error) {
				return &search.Response{Query: req.Query, Results: []search.Result{}}, nil
			},
			synthFn: func(_ context.Context, req search.Request) (*search.SynthesizedResponse, error) {
				return &search.SynthesizedResponse{Query: req.Query, Answer: "no matching reports"}, nil
			},
		},
		Health: &fakeHealth{report: health.Report{
			Status:    health.StatusHealthy,
			Details:   map[string]health.ProbeResult{"vector_store": {Status: health.ProbeOK}},
			CheckedAt: time.Now(),
		}},
		Cache:    &fakeCache{stats: cache.Stats{Enabled: true, MaxEntries: 512}},
		Cost:     &fakeCost{stats: provider.CostStats{Enabled: true, Provider: "anthropic", Model: "claude-sonnet-4-5"}},
		Breakers: &fakeBreakers{stats: map[string]health.BreakerStats{}},
	}
}

func newTestServer(t *testing.T, svc server.Services) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Version:    "1.2.3",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, srv.RegisterServices(svc))
	return srv
}

func doRequest(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_New_EmptyListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.True(t, tserr.HasCode(err, tserr.CodeServerConfigInvalid), "expected CodeServerConfigInvalid, got %s", tserr.CodeOf(err))
	assert.Contains(t, err.Error(), "listen address is required")
}

func TestServer_RegisterServices_MissingDependency(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*server.Services)
		want   string
	}{
		{"search", func(s *server.Services) { s.Search = nil }, "search service is required"},
		{"health", func(s *server.Services) { s.Health = nil }, "health checker is required"},
		{"cache", func(s *server.Services) { s.Cache = nil }, "cache admin is required"},
		{"cost", func(s *server.Services) { s.Cost = nil }, "cost reporter is required"},
		{"breakers", func(s *server.Services) { s.Breakers = nil }, "breaker reporter is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
			require.NoError(t, err)

			svc := testServices()
			tc.mutate(&svc)

			err = srv.RegisterServices(svc)
			require.Error(t, err)
			assert.True(t, tserr.HasCode(err, tserr.CodeServerConfigInvalid))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestServer_Search(t *testing.T) {
	var got search.Request
	svc := testServices()
	svc.Search = &fakeSearch{
		searchFn: func(_ context.Context, req search.Request) (*search.Response, error) {
			got = req
			return &search.Response{
				Query: req.Query,
				Results: []search.Result{{
					Snippet:        "Gen Z shoppers favor resale platforms over fast fashion.",
					Source:         "retail_2026.md",
					Page:           3,
					Category:       "Consumer & Culture",
					RelevanceScore: 0.92,
				}},
				Count: 1,
			}, nil
		},
	}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/search", map[string]any{
		"query": "gen z retail trends",
		"top_k": 7,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "gen z retail trends", got.Query)
	assert.Equal(t, 7, got.TopK)

	var resp search.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gen z retail trends", resp.Query)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "retail_2026.md", resp.Results[0].Source)
	assert.Equal(t, 3, resp.Results[0].Page)
	assert.False(t, resp.Cached)
}

func TestServer_Search_MissingQueryRejected(t *testing.T) {
	srv := newTestServer(t, testServices())

	w := doRequest(t, srv, http.MethodPost, "/api/v1/search", map[string]any{"top_k": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestServer_Search_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid query", tserr.New(tserr.CodeSearchQueryInvalid, "query is empty"), http.StatusBadRequest},
		{"breaker open", tserr.New(tserr.CodeResilienceBreakerOpen, "reports circuit is open"), http.StatusServiceUnavailable},
		{"store unavailable", tserr.New(tserr.CodeStoreUnavailable, "store is not reachable"), http.StatusServiceUnavailable},
		{"timeout", tserr.New(tserr.CodeResilienceTimeout, "reports call timed out"), http.StatusGatewayTimeout},
		{"upstream failure", tserr.New(tserr.CodeProviderUpstreamFailure, "embedding request failed"), http.StatusBadGateway},
		{"budget exceeded", tserr.New(tserr.CodeProviderBudgetExceeded, "llm budget exhausted"), http.StatusTooManyRequests},
		{"internal", tserr.New(tserr.CodeServerInternalFailure, "unexpected failure"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := testServices()
			svc.Search = &fakeSearch{
				searchFn: func(context.Context, search.Request) (*search.Response, error) {
					return nil, tc.err
				},
			}
			srv := newTestServer(t, svc)

			w := doRequest(t, srv, http.MethodPost, "/api/v1/search", map[string]any{"query": "ai"})
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestServer_SearchSynthesized(t *testing.T) {
	svc := testServices()
	svc.Search = &fakeSearch{
		synthFn: func(_ context.Context, req search.Request) (*search.SynthesizedResponse, error) {
			return &search.SynthesizedResponse{
				Query:   req.Query,
				Results: []search.Result{{Snippet: "AI agents move into retail ops.", Source: "tech_2026.md", Page: 1, RelevanceScore: 0.88}},
				Count:   1,
				Answer:  "Across reports, AI agents are the dominant retail technology trend.",
				Model:   "claude-sonnet-4-5",
				Usage:   provider.Usage{InputTokens: 120, OutputTokens: 45},
			}, nil
		},
	}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/search/synthesized", map[string]any{"query": "ai in retail"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp search.SynthesizedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ai in retail", resp.Query)
	assert.Contains(t, resp.Answer, "dominant retail technology trend")
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.Equal(t, 120, resp.Usage.InputTokens)
}

func TestServer_ListCategories(t *testing.T) {
	srv := newTestServer(t, testServices())

	w := doRequest(t, srv, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Categories, 6)
	assert.Contains(t, resp.Categories, "Technology & Innovation")
	assert.Equal(t, "General", resp.Categories[len(resp.Categories)-1])
}

func TestServer_Status(t *testing.T) {
	svc := testServices()
	svc.Breakers = &fakeBreakers{stats: map[string]health.BreakerStats{
		"reports": {State: "closed", TotalCalls: 42, TotalSuccesses: 40, TotalFailures: 2},
		"llm":     {State: "open", TotalCalls: 10, TotalFailures: 6},
	}}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Service         string                         `json:"service"`
		Version         string                         `json:"version"`
		UptimeSeconds   float64                        `json:"uptime_seconds"`
		CircuitBreakers map[string]health.BreakerStats `json:"circuit_breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "trendscout", resp.Service)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, 0.0)
	require.Len(t, resp.CircuitBreakers, 2)
	assert.Equal(t, "open", resp.CircuitBreakers["llm"].State)
	assert.Equal(t, int64(42), resp.CircuitBreakers["reports"].TotalCalls)
}

func TestServer_Health(t *testing.T) {
	cases := []struct {
		name       string
		status     health.Status
		wantStatus int
	}{
		{"healthy", health.StatusHealthy, http.StatusOK},
		{"degraded still serves", health.StatusDegraded, http.StatusOK},
		{"unhealthy returns 503", health.StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := testServices()
			svc.Health = &fakeHealth{report: health.Report{
				Status:    tc.status,
				Details:   map[string]health.ProbeResult{"vector_store": {Status: health.ProbeOK}},
				CheckedAt: time.Now(),
			}}
			srv := newTestServer(t, svc)

			w := doRequest(t, srv, http.MethodGet, "/health", nil)
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp health.Report
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.status, resp.Status)
			assert.Contains(t, resp.Details, "vector_store")
		})
	}
}

func TestServer_CacheStats(t *testing.T) {
	svc := testServices()
	svc.Cache = &fakeCache{stats: cache.Stats{
		Enabled:        true,
		Entries:        12,
		MaxEntries:     512,
		Hits:           30,
		Misses:         10,
		HitRatePercent: 75.0,
	}}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, 12, resp.Entries)
	assert.InDelta(t, 75.0, resp.HitRatePercent, 0.001)
}

func TestServer_ClearCache(t *testing.T) {
	fc := &fakeCache{stats: cache.Stats{Enabled: true}}
	svc := testServices()
	svc.Cache = fc
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "cache cleared", resp.Message)
	assert.True(t, fc.cleared)
}

func TestServer_ClearCache_Failure(t *testing.T) {
	svc := testServices()
	svc.Cache = &fakeCache{clearErr: tserr.New(tserr.CodeServerInternalFailure, "cache reset failed")}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "cache reset failed")
}

func TestServer_LLMStats(t *testing.T) {
	svc := testServices()
	svc.Cost = &fakeCost{stats: provider.CostStats{
		Enabled:            true,
		Provider:           "anthropic",
		Model:              "claude-sonnet-4-5",
		TotalRequests:      8,
		TotalTokens:        4200,
		TotalCostUSD:       0.31,
		BudgetUSD:          50,
		BudgetRemainingUSD: 49.69,
	}}
	srv := newTestServer(t, svc)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/llm/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp provider.CostStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, int64(8), resp.TotalRequests)
	assert.InDelta(t, 0.31, resp.TotalCostUSD, 0.001)
}

func TestServer_RequestIDEcho(t *testing.T) {
	srv := newTestServer(t, testServices())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-Request-Id", "trace-abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "trace-abc-123", w.Header().Get("X-Request-Id"))
}

func TestServer_RequestIDGenerated(t *testing.T) {
	srv := newTestServer(t, testServices())

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)

	id := w.Header().Get("X-Request-Id")
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated request id should be a UUID")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	metrics.Init()
	srv := newTestServer(t, testServices())

	// Drive one request through the middleware so the request counter has a
	// series to report.
	doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)

	w := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "trendscout_requests_total")
}

func TestServer_OpenAPISpec(t *testing.T) {
	srv := newTestServer(t, testServices())

	w := doRequest(t, srv, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "/api/v1/search")
	assert.Contains(t, body, "search-synthesized")
	assert.Contains(t, body, "clear-cache")
}

func TestServer_CORSHeaders(t *testing.T) {
	srv := newTestServer(t, testServices())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv := newTestServer(t, testServices())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	<-ctx.Done()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}
