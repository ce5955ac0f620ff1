// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package provider

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// DefaultBudgetUSD is the spend ceiling applied when config does not set one.
const DefaultBudgetUSD = 50.0

// Pricing is a vendor list price in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// fallbackPricing stands in for models missing from the table so that an
// unknown model still counts against the budget instead of running free.
var fallbackPricing = Pricing{InputPerMTok: 1.00, OutputPerMTok: 5.00}

// defaultPricing returns the built-in price table. Prices drift upstream;
// this is a budget guard, not a billing system.
func defaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"claude-sonnet-4-5":      {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-haiku-4-5":       {InputPerMTok: 1.00, OutputPerMTok: 5.00},
		"gpt-4.1":                {InputPerMTok: 2.00, OutputPerMTok: 8.00},
		"gpt-4.1-mini":           {InputPerMTok: 0.40, OutputPerMTok: 1.60},
		"text-embedding-3-small": {InputPerMTok: 0.02},
		"text-embedding-3-large": {InputPerMTok: 0.13},
	}
}

// CostStats is the wire shape served by the LLM stats endpoint.
type CostStats struct {
	Enabled            bool    `json:"enabled"`
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	TotalRequests      int64   `json:"total_requests"`
	TotalTokens        int64   `json:"total_tokens"`
	TotalCostUSD       float64 `json:"total_cost_usd"`
	BudgetUSD          float64 `json:"budget_usd"`
	BudgetRemainingUSD float64 `json:"budget_remaining_usd"`
}

// CostTracker accumulates token usage and estimated spend across requests and
// enforces an optional budget ceiling. Safe for concurrent use.
type CostTracker struct {
	mu sync.Mutex

	provider  string
	model     string
	budgetUSD float64
	pricing   map[string]Pricing

	totalCostUSD float64
	requests     int64
	totalTokens  int64
}

// NewCostTracker creates a tracker for the given vendor and primary model.
// A budget of zero or less disables the ceiling; usage is still recorded.
func NewCostTracker(providerName, model string, budgetUSD float64) *CostTracker {
	return &CostTracker{
		provider:  providerName,
		model:     model,
		budgetUSD: budgetUSD,
		pricing:   defaultPricing(),
	}
}

// Charge records usage for one completed request and returns its estimated
// cost in USD.
func (t *CostTracker) Charge(model string, usage Usage) float64 {
	price, ok := t.pricing[model]
	if !ok {
		slog.Warn("no pricing for model, charging fallback rate", "model", model)
		price = fallbackPricing
	}
	cost := float64(usage.InputTokens)*price.InputPerMTok/1e6 +
		float64(usage.OutputTokens)*price.OutputPerMTok/1e6

	t.mu.Lock()
	t.totalCostUSD += cost
	t.requests++
	t.totalTokens += int64(usage.Total())
	t.mu.Unlock()

	metrics.LLMTokensTotal.WithLabelValues(t.provider, "input").Add(float64(usage.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues(t.provider, "output").Add(float64(usage.OutputTokens))
	metrics.LLMCostUSD.Add(cost)

	slog.Debug("llm usage recorded",
		"provider", t.provider,
		"model", model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cost_usd", cost,
	)
	return cost
}

// CheckBudget returns a budget-exceeded error once estimated spend has
// reached the ceiling. Callers run it before issuing a request so an
// exhausted budget stops spend without a vendor round trip.
func (t *CostTracker) CheckBudget() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budgetUSD <= 0 || t.totalCostUSD < t.budgetUSD {
		return nil
	}
	return tserr.New(tserr.CodeProviderBudgetExceeded,
		fmt.Sprintf("llm budget of $%.2f exhausted (spent $%.4f)", t.budgetUSD, t.totalCostUSD),
		tserr.FieldProvider(t.provider))
}

// Stats snapshots the running totals.
func (t *CostTracker) Stats() CostStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.budgetUSD - t.totalCostUSD
	if remaining < 0 {
		remaining = 0
	}
	return CostStats{
		Enabled:            true,
		Provider:           t.provider,
		Model:              t.model,
		TotalRequests:      t.requests,
		TotalTokens:        t.totalTokens,
		TotalCostUSD:       round4(t.totalCostUSD),
		BudgetUSD:          t.budgetUSD,
		BudgetRemainingUSD: round4(remaining),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
