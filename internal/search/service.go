// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package search implements the trend-report search pipeline: request
// validation and sanitization, query embedding, vector retrieval through
// the guarded store, result shaping and caching, plus LLM synthesis layered
// on top of the same retrieval.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/store"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Cache namespaces. Plain searches and synthesized answers are cached
// under separate key prefixes.
const (
	searchNamespace = "search"
	synthNamespace  = "synth"
)

// Result is one scored hit from the report corpus.
type Result struct {
	Snippet        string  `json:"snippet"`
	Source         string  `json:"source"`
	Page           int     `json:"page"`
	Category       string  `json:"category,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Response is the answer to a semantic search. Cached marks responses
// served from the query cache rather than a fresh retrieval.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`
	Cached  bool     `json:"cached"`
}

// Service runs trend searches end to end. Per request: validate and
// sanitize, consult the cache, collapse concurrent identical misses, embed
// the query, retrieve the nearest chunks through the guarded collection,
// then shape and cache the response.
type Service struct {
	collection  store.Collection
	embedder    provider.Embedder
	generator   provider.Provider
	cache       cache.Cache
	keyer       cache.Keyer
	logger      *slog.Logger
	defaultTopK int

	flight singleflight.Group
}

// Config wires a Service. Collection and Embedder are required; a nil
// Cache disables caching and a nil Generator disables synthesis.
type Config struct {
	Collection store.Collection
	Embedder   provider.Embedder

	// Generator produces synthesized answers, typically the guarded LLM
	// wrapper. Optional.
	Generator provider.Provider

	// Cache holds encoded responses. Optional.
	Cache cache.Cache

	// DefaultTopK applies when a request leaves top_k unset. Zero takes
	// the package default.
	DefaultTopK int

	Logger *slog.Logger
}

// NewService builds the search pipeline.
func NewService(cfg Config) (*Service, error) {
	if cfg.Collection == nil {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "search service requires a collection")
	}
	if cfg.Embedder == nil {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "search service requires an embedder")
	}

	topK := cfg.DefaultTopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < MinTopK || topK > MaxTopK {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "search default top_k out of range",
			tserr.Field("top_k", topK))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		collection:  cfg.Collection,
		embedder:    cfg.Embedder,
		generator:   cfg.Generator,
		cache:       cfg.Cache,
		keyer:       cache.NewDefaultKeyer(),
		logger:      logger,
		defaultTopK: topK,
	}, nil
}

// Search answers a semantic query over the ingested reports.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.search(ctx, req)
	observeSearch("semantic", start, err)
	return resp, err
}

func (s *Service) search(ctx context.Context, req Request) (*Response, error) {
	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(searchNamespace, req)
	if resp, ok := s.cachedSearch(ctx, key); ok {
		s.logger.Debug("search cache hit", "query", truncate(req.Query, 50))
		return resp, nil
	}

	value, err, _ := s.flight.Do(flightKey("semantic", req), func() (any, error) {
		return s.retrieve(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Response), nil
}

// retrieve is the cache-miss path: embed the query, find the nearest
// chunks, shape and cache the response.
func (s *Service) retrieve(ctx context.Context, req Request, key string) (*Response, error) {
	embedding, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	hits, err := s.collection.Query(ctx, store.QueryRequest{
		Embedding: embedding,
		TopK:      req.TopK,
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:   req.Query,
		Results: formatResults(hits),
	}
	resp.Count = len(resp.Results)

	if resp.Count > 0 {
		s.cachePut(ctx, key, resp)
	}

	s.logger.Info("search completed",
		"query", truncate(req.Query, 50),
		"results", resp.Count,
	)
	return resp, nil
}

// embedQuery turns query text into a vector. Provider-coded causes keep
// their own HTTP mapping; only uncoded failures take the embed-stage code.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, tserr.Wrap(err, tserr.CodeSearchEmbedFailure, "embedding query")
	}
	if len(vecs) != 1 {
		return nil, tserr.New(tserr.CodeSearchEmbedFailure, "embedder returned wrong vector count",
			tserr.Field("got", len(vecs)))
	}
	return vecs[0], nil
}

func formatResults(hits []store.QueryResult) []Result {
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Snippet:        hit.Document.Content,
			Source:         hit.Document.Source,
			Page:           hit.Document.Page,
			Category:       hit.Document.Category,
			RelevanceScore: relevance(hit.Distance),
		})
	}
	return results
}

// relevance converts a vector distance to the wire score: round(1-d, 3).
func relevance(distance float64) float64 {
	return math.Round((1-distance)*1000) / 1000
}

// keyParams is the canonical cache-key input.
type keyParams struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// cacheKey derives the deterministic key for req under a namespace. An
// empty key disables caching for the call; key trouble must never fail a
// search.
func (s *Service) cacheKey(namespace string, req Request) string {
	if s.cache == nil {
		return ""
	}
	key, err := s.keyer.Key(namespace, keyParams{Query: req.Query, TopK: req.TopK})
	if err != nil {
		s.logger.Warn("cache key derivation failed", "error", err)
		return ""
	}
	return key
}

func (s *Service) cachedSearch(ctx context.Context, key string) (*Response, bool) {
	raw, ok := s.cacheGet(ctx, key)
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.dropCorrupt(ctx, key, err)
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil || key == "" {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *Service) cachePut(ctx context.Context, key string, value any) {
	if s.cache == nil || key == "" {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("encoding response for cache failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn("caching response failed", "error", err)
	}
}

func (s *Service) dropCorrupt(ctx context.Context, key string, err error) {
	s.logger.Warn("dropping corrupt cache entry", "key", key, "error", err)
	_ = s.cache.Delete(ctx, key)
}

func observeSearch(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchesTotal.WithLabelValues(kind, status).Inc()
	metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func flightKey(kind string, req Request) string {
	return fmt.Sprintf("%s|%s|%d", kind, req.Query, req.TopK)
}

// truncate cuts text at max runes, marking the cut with an ellipsis.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
