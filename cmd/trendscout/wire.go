// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/config"
	"github.com/trendscout-dev/trendscout/internal/health"
	"github.com/trendscout-dev/trendscout/internal/provider"
	anthropicprov "github.com/trendscout-dev/trendscout/internal/provider/anthropic"
	openaiprov "github.com/trendscout-dev/trendscout/internal/provider/openai"
	"github.com/trendscout-dev/trendscout/internal/resilience"
	"github.com/trendscout-dev/trendscout/internal/search"
	"github.com/trendscout-dev/trendscout/internal/server"
	"github.com/trendscout-dev/trendscout/internal/store"
	_ "github.com/trendscout-dev/trendscout/internal/store/sqlite" // register sqlite backend
)

// Breaker names. Every path to the same dependency shares one breaker, so
// failures seen by any caller trip the circuit for all of them.
const (
	breakerReports = "reports"
	breakerLLM     = "llm"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server     *server.Server
	Collection store.Collection
	Breakers   *resilience.Registry
}

// wireApp creates all subsystems and wires them together.
func wireApp(cfg *config.Config, appVersion string, logger *slog.Logger) (*App, error) {
	// 1. Circuit breaker registry. Per-dependency tuning applies when a
	// breaker is first requested.
	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	// 2. Vector store behind the guarded collection.
	collection, err := openCollection(cfg, breakers)
	if err != nil {
		return nil, err
	}

	// 3. Query cache.
	queryCache := cache.NewMemoryCache(cache.Policy{
		Enabled:    cfg.Cache.Enabled,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		Name:       "search",
	})

	// 4. Embeddings and the guarded synthesis vendor.
	embedder, err := newEmbedder(cfg)
	if err != nil {
		_ = collection.Close()
		return nil, err
	}

	generator, costs := newGenerator(cfg, breakers)

	// 5. Search pipeline.
	searchSvc, err := search.NewService(search.Config{
		Collection:  collection,
		Embedder:    embedder,
		Generator:   generator,
		Cache:       queryCache,
		DefaultTopK: cfg.Search.DefaultTopK,
		Logger:      logger,
	})
	if err != nil {
		_ = collection.Close()
		return nil, err
	}

	// 6. Health probes. The store probe reads through the guarded
	// collection, so an open breaker degrades the report instead of
	// failing it.
	aggregator := health.NewAggregator(breakers, health.WithProbeTimeout(cfg.Health.ProbeTimeout))
	aggregator.Register("vector_store", func(ctx context.Context) (any, error) {
		count, err := collection.Count(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"documents": count}, nil
	})
	aggregator.Register("cache", func(context.Context) (any, error) {
		return queryCache.Stats(), nil
	})

	// 7. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Version:      appVersion,
		Logger:       logger,
	})
	if err != nil {
		_ = collection.Close()
		return nil, err
	}
	if err := srv.RegisterServices(server.Services{
		Search:   searchSvc,
		Health:   aggregator,
		Cache:    queryCache,
		Cost:     costs,
		Breakers: breakers,
	}); err != nil {
		_ = collection.Close()
		return nil, err
	}

	return &App{
		Server:     srv,
		Collection: collection,
		Breakers:   breakers,
	}, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.Collection == nil {
		return nil
	}
	return a.Collection.Close()
}

// openCollection opens the configured backend and wraps it in the guarded
// collection so every store call runs behind the reports breaker.
func openCollection(cfg *config.Config, breakers *resilience.Registry) (store.Collection, error) {
	inner, err := store.Open(store.Config{
		Backend:          cfg.Storage.Backend,
		Path:             cfg.Storage.Path,
		Collection:       cfg.Search.Collection,
		VectorDimensions: cfg.Storage.VectorDimensions,
	})
	if err != nil {
		return nil, err
	}

	dep := cfg.Resilience.Store
	breaker := breakers.GetOrCreate(breakerReports, breakerConfig(dep))
	return store.NewSafeCollection(inner, breaker, store.SafeConfig{
		CallTimeout:     dep.CallTimeout,
		MaxRetries:      dep.MaxRetries,
		InitialDelay:    dep.InitialDelay,
		MaxDelay:        dep.MaxDelay,
		ExponentialBase: dep.ExponentialBase,
		Jitter:          dep.Jitter,
	}), nil
}

// newEmbedder builds the OpenAI embeddings client. Embeddings run through
// OpenAI regardless of the synthesis vendor, and search cannot work without
// them, so a missing key fails startup.
func newEmbedder(cfg *config.Config) (provider.Embedder, error) {
	return openaiprov.NewEmbedder(openaiprov.EmbedderConfig{
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Model:          cfg.LLM.EmbeddingModel,
		Dimensions:     cfg.Storage.VectorDimensions,
		RequestTimeout: cfg.LLM.Timeout,
	})
}

// generatorFactory builds the inner synthesis provider for a vendor.
type generatorFactory func(cfg *config.Config) (provider.Provider, error)

// generatorFactories maps vendor names to constructors. Declared as a
// variable so tests can inject failing factories.
var generatorFactories = map[string]generatorFactory{
	"anthropic": func(cfg *config.Config) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{
			APIKey:         cfg.LLM.AnthropicAPIKey,
			RequestTimeout: cfg.LLM.Timeout,
		})
	},
	"openai": func(cfg *config.Config) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{
			APIKey:         cfg.LLM.OpenAIAPIKey,
			RequestTimeout: cfg.LLM.Timeout,
		})
	},
}

// newGenerator builds the guarded synthesis provider and its cost tracker.
// A vendor that cannot be constructed (usually a missing API key) disables
// synthesis rather than failing startup: plain search still works, and the
// synthesized endpoint reports the absence per request.
func newGenerator(cfg *config.Config, breakers *resilience.Registry) (provider.Provider, server.CostReporter) {
	disabled := disabledCost{provider: cfg.LLM.Provider, model: cfg.LLM.Model}

	factory, ok := generatorFactories[cfg.LLM.Provider]
	if !ok {
		slog.Warn("llm synthesis disabled: unknown provider", "provider", cfg.LLM.Provider)
		return nil, disabled
	}
	inner, err := factory(cfg)
	if err != nil {
		slog.Warn("llm synthesis disabled", "provider", cfg.LLM.Provider, "reason", err)
		return nil, disabled
	}

	dep := cfg.Resilience.LLM
	tracker := provider.NewCostTracker(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BudgetUSD)
	breaker := breakers.GetOrCreate(breakerLLM, breakerConfig(dep))
	safe := provider.NewSafeProvider(inner, breaker, tracker, provider.SafeConfig{
		GenerateTimeout: dep.CallTimeout,
		MaxRetries:      dep.MaxRetries,
		InitialDelay:    dep.InitialDelay,
		MaxDelay:        dep.MaxDelay,
		ExponentialBase: dep.ExponentialBase,
		Jitter:          dep.Jitter,
	})
	return safe, tracker
}

func breakerConfig(dep config.DependencyConfig) resilience.Config {
	return resilience.Config{
		FailureThreshold:  dep.FailureThreshold,
		SuccessThreshold:  dep.SuccessThreshold,
		OpenTimeout:       dep.OpenTimeout,
		HalfOpenMaxProbes: dep.HalfOpenMaxProbes,
	}
}

// disabledCost serves the LLM stats shape when no vendor is configured.
type disabledCost struct{ provider, model string }

func (d disabledCost) Stats() provider.CostStats {
	return provider.CostStats{Provider: d.provider, Model: d.model}
}
