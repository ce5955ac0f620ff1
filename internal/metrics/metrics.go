// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package metrics provides Prometheus instrumentation for the trendscout
// service. All metric collectors are registered via Init and exposed through
// Handler for scraping.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by route, method, and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_requests_total",
			Help: "Total HTTP requests processed",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration observes request latency in seconds by route and method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendscout_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// SearchesTotal counts search executions by kind (semantic, synthesized)
	// and outcome.
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_searches_total",
			Help: "Total search queries executed",
		},
		[]string{"kind", "status"},
	)

	// SearchDuration observes end-to-end search latency in seconds by kind.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendscout_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// CacheHits counts cache hits by cache name.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses counts cache misses by cache name.
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache"},
	)

	// CacheEvictions counts LRU evictions by cache name.
	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_cache_evictions_total",
			Help: "Total cache entries evicted",
		},
		[]string{"cache"},
	)

	// BreakerState tracks the current circuit breaker state per dependency:
	// 0 closed, 1 half-open, 2 open.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendscout_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"dependency"},
	)

	// BreakerTransitions counts breaker state transitions by dependency.
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)

	// BreakerRejections counts calls rejected by an open breaker. Rejected
	// calls never reach the dependency and are excluded from its call totals.
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_circuit_breaker_rejections_total",
			Help: "Total calls rejected by an open circuit breaker",
		},
		[]string{"dependency"},
	)

	// RetriesTotal counts retry attempts (excluding the first try) by operation.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_retries_total",
			Help: "Total retry attempts",
		},
		[]string{"operation"},
	)

	// LLMRequestsTotal counts LLM generations by provider, model, and outcome.
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_llm_requests_total",
			Help: "Total LLM generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal counts tokens consumed by provider and kind
	// (prompt, completion).
	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_llm_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"provider", "kind"},
	)

	// LLMCostUSD accumulates the estimated LLM spend in US dollars.
	LLMCostUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trendscout_llm_cost_usd_total",
			Help: "Estimated cumulative LLM cost in USD",
		},
	)

	// DocumentsIngested counts report chunks written to the vector store
	// by category.
	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendscout_documents_ingested_total",
			Help: "Total document chunks ingested",
		},
		[]string{"category"},
	)
)

var registerOnce sync.Once

// Init registers all metric collectors with the default Prometheus registry.
// Safe to call more than once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			SearchesTotal,
			SearchDuration,
			CacheHits,
			CacheMisses,
			CacheEvictions,
			BreakerState,
			BreakerTransitions,
			BreakerRejections,
			RetriesTotal,
			LLMRequestsTotal,
			LLMTokensTotal,
			LLMCostUSD,
			DocumentsIngested,
		)
	})
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
