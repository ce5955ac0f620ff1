// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trendscout-dev/trendscout/internal/provider"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Synthesis tuning. The prompt carries at most synthesisMaxSources
// excerpts, each truncated so one verbose chunk cannot crowd out the rest
// of the context.
const (
	synthesisMaxSources  = 5
	synthesisExcerptLen  = 300
	synthesisMaxTokens   = 1500
	synthesisTemperature = 0.3
)

const synthesisSystemPrompt = "You are an expert trend analyst specializing in " +
	"cross-report synthesis and meta-trend identification."

// noResultsAnswer is returned without an LLM call when retrieval comes back
// empty; there is nothing to synthesize and no reason to spend budget.
const noResultsAnswer = "No matching trend reports were found for this query."

// SynthesizedResponse is a search response with an LLM answer layered on
// top of the raw hits.
type SynthesizedResponse struct {
	Query   string         `json:"query"`
	Results []Result       `json:"results"`
	Count   int            `json:"count"`
	Answer  string         `json:"answer"`
	Model   string         `json:"model,omitempty"`
	Usage   provider.Usage `json:"usage"`
	Cached  bool           `json:"cached"`
}

// Synthesize answers a query with an LLM summary of the matching report
// excerpts alongside the raw results.
func (s *Service) Synthesize(ctx context.Context, req Request) (*SynthesizedResponse, error) {
	start := time.Now()
	resp, err := s.synthesize(ctx, req)
	observeSearch("synthesized", start, err)
	return resp, err
}

func (s *Service) synthesize(ctx context.Context, req Request) (*SynthesizedResponse, error) {
	if s.generator == nil {
		return nil, tserr.New(tserr.CodeSearchSynthesisFailure, "no LLM provider configured for synthesis")
	}

	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(synthNamespace, req)
	if resp, ok := s.cachedSynthesis(ctx, key); ok {
		s.logger.Debug("synthesis cache hit", "query", truncate(req.Query, 50))
		return resp, nil
	}

	value, err, _ := s.flight.Do(flightKey("synthesized", req), func() (any, error) {
		return s.generateSynthesis(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	return value.(*SynthesizedResponse), nil
}

// generateSynthesis is the cache-miss path: run the base retrieval, then
// ask the LLM for a cross-report reading of the hits.
func (s *Service) generateSynthesis(ctx context.Context, req Request, key string) (*SynthesizedResponse, error) {
	base, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &SynthesizedResponse{
		Query:   base.Query,
		Results: base.Results,
		Count:   base.Count,
	}

	if base.Count == 0 {
		resp.Answer = noResultsAnswer
		return resp, nil
	}

	gen, err := s.generator.Generate(ctx, provider.GenerateRequest{
		System:      synthesisSystemPrompt,
		Prompt:      synthesisPrompt(req.Query, base.Results),
		MaxTokens:   synthesisMaxTokens,
		Temperature: synthesisTemperature,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, tserr.Wrap(err, tserr.CodeSearchSynthesisFailure, "synthesizing answer")
	}

	resp.Answer = gen.Text
	resp.Model = gen.Model
	resp.Usage = gen.Usage

	s.cachePut(ctx, key, resp)

	s.logger.Info("synthesis completed",
		"query", truncate(req.Query, 50),
		"sources", resp.Count,
		"tokens", gen.Usage.Total(),
	)
	return resp, nil
}

// synthesisPrompt assembles the cross-report analysis prompt from the top
// hits.
func synthesisPrompt(query string, results []Result) string {
	top := results
	if len(top) > synthesisMaxSources {
		top = top[:synthesisMaxSources]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these search results and identify meta-trends.\n\nQuery: %q\n\nResults from multiple trend reports:\n", query)
	for _, r := range top {
		fmt.Fprintf(&b, "\nSource: %s\nContent: %s\n", r.Source, truncate(r.Snippet, synthesisExcerptLen))
	}
	b.WriteString("\nProvide:\n" +
		"1. Common themes across reports\n" +
		"2. Contradictions or different perspectives\n" +
		"3. Emerging meta-trends\n" +
		"4. A closing recommendation\n\n" +
		"Answer in concise prose.")
	return b.String()
}

func (s *Service) cachedSynthesis(ctx context.Context, key string) (*SynthesizedResponse, bool) {
	raw, ok := s.cacheGet(ctx, key)
	if !ok {
		return nil, false
	}
	var resp SynthesizedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.dropCorrupt(ctx, key, err)
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}
