// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package config loads and validates the trendscout configuration from
// defaults, an optional YAML file, and TRENDSCOUT_-prefixed environment
// variables, in increasing precedence.
package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trendscout-dev/trendscout/internal/search"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Config is the top-level trendscout configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Search     SearchConfig     `mapstructure:"search"`
	Cache      CacheConfig      `mapstructure:"cache"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Health     HealthConfig     `mapstructure:"health"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects and parameterizes the vector store backend.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	Path             string `mapstructure:"path"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// SearchConfig tunes the search pipeline.
type SearchConfig struct {
	Collection  string `mapstructure:"collection"`
	DefaultTopK int    `mapstructure:"default_top_k"`
}

// CacheConfig tunes the query cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// LLMConfig selects the synthesis vendor and its budget. API keys resolve
// from TRENDSCOUT_LLM_*_API_KEY or the vendors' conventional variables
// (ANTHROPIC_API_KEY, OPENAI_API_KEY).
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	BudgetUSD       float64       `mapstructure:"budget_usd"`
	Timeout         time.Duration `mapstructure:"timeout"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
}

// HealthConfig tunes the health aggregator.
type HealthConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// IngestConfig tunes report ingestion.
type IngestConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	Workers      int `mapstructure:"workers"`
}

// ResilienceConfig tunes the per-dependency fault isolation.
type ResilienceConfig struct {
	Store DependencyConfig `mapstructure:"store"`
	LLM   DependencyConfig `mapstructure:"llm"`
}

// DependencyConfig is the breaker, retry, and timeout tuning for one guarded
// dependency.
type DependencyConfig struct {
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	SuccessThreshold  int           `mapstructure:"success_threshold"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxProbes int           `mapstructure:"half_open_max_probes"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	ExponentialBase   float64       `mapstructure:"exponential_base"`
	Jitter            float64       `mapstructure:"jitter"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
}

// Load reads configuration from the given path (or defaults when empty) with
// environment variable overrides (prefix TRENDSCOUT_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "~/.trendscout/trendscout.db")
	v.SetDefault("storage.vector_dimensions", 1536)

	v.SetDefault("search.collection", "trend_reports")
	v.SetDefault("search.default_top_k", 5)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.budget_usd", 50.0)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("health.probe_timeout", "5s")

	v.SetDefault("ingest.chunk_size", 300)
	v.SetDefault("ingest.chunk_overlap", 50)
	v.SetDefault("ingest.workers", 4)

	v.SetDefault("resilience.store.failure_threshold", 5)
	v.SetDefault("resilience.store.success_threshold", 2)
	v.SetDefault("resilience.store.open_timeout", "60s")
	v.SetDefault("resilience.store.half_open_max_probes", 3)
	v.SetDefault("resilience.store.max_retries", 3)
	v.SetDefault("resilience.store.initial_delay", "500ms")
	v.SetDefault("resilience.store.max_delay", "10s")
	v.SetDefault("resilience.store.exponential_base", 2.0)
	v.SetDefault("resilience.store.jitter", 0.1)
	v.SetDefault("resilience.store.call_timeout", "10s")

	v.SetDefault("resilience.llm.failure_threshold", 5)
	v.SetDefault("resilience.llm.success_threshold", 2)
	v.SetDefault("resilience.llm.open_timeout", "60s")
	v.SetDefault("resilience.llm.half_open_max_probes", 3)
	v.SetDefault("resilience.llm.max_retries", 3)
	v.SetDefault("resilience.llm.initial_delay", "1s")
	v.SetDefault("resilience.llm.max_delay", "15s")
	v.SetDefault("resilience.llm.exponential_base", 2.0)
	v.SetDefault("resilience.llm.jitter", 0.1)
	v.SetDefault("resilience.llm.call_timeout", "30s")

	// Environment
	v.SetEnvPrefix("TRENDSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API keys also resolve from the vendors' conventional variables.
	_ = v.BindEnv("llm.anthropic_api_key", "TRENDSCOUT_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "TRENDSCOUT_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, tserr.Errorf(tserr.CodeConfigParseInvalidFormat, "parsing config %s: %w", path, err)
			}
			return nil, tserr.Errorf(tserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, tserr.Errorf(tserr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	expanded, err := expandPath(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Path = expanded

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, tserr.Errorf(tserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// collectionNameRe mirrors the sqlite backend's identifier rule so a bad
// collection name fails at load instead of at open.
var collectionNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateHealth()...)
	errs = append(errs, c.validateIngest()...)
	errs = append(errs, c.Resilience.Store.validate("resilience.store")...)
	errs = append(errs, c.Resilience.LLM.validate("resilience.llm")...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, tserr.New(tserr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else if port, err := strconv.Atoi(portStr); err != nil {
			errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
				"config: server.listen port must be a number, got %q",
				portStr,
			))
		} else if port < 1 || port > 65535 {
			errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
				"config: server.listen port must be between 1 and 65535, got %d",
				port,
			))
		}
	}

	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: server.read_timeout must be greater than 0, got %s",
			c.Server.ReadTimeout,
		))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: server.write_timeout must be greater than 0, got %s",
			c.Server.WriteTimeout,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.Path == "" {
		errs = append(errs, tserr.New(tserr.CodeConfigValidateInvalidValue, "config: storage.path must not be empty"))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions,
		))
	}

	return errs
}

func (c *Config) validateSearch() []error {
	var errs []error

	if !collectionNameRe.MatchString(c.Search.Collection) {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: search.collection must be a valid identifier, got %q",
			c.Search.Collection,
		))
	}

	if c.Search.DefaultTopK < search.MinTopK || c.Search.DefaultTopK > search.MaxTopK {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: search.default_top_k must be between %d and %d, got %d",
			search.MinTopK, search.MaxTopK, c.Search.DefaultTopK,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	if !c.Cache.Enabled {
		return nil
	}

	var errs []error
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: cache.max_entries must be greater than 0, got %d",
			c.Cache.MaxEntries,
		))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must be greater than 0, got %s",
			c.Cache.TTL,
		))
	}
	return errs
}

func (c *Config) validateLLM() []error {
	var errs []error

	validProviders := map[string]bool{"anthropic": true, "openai": true}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: llm.provider must be one of [anthropic, openai], got %q",
			c.LLM.Provider,
		))
	}

	if c.LLM.Model == "" {
		errs = append(errs, tserr.New(tserr.CodeConfigValidateInvalidValue, "config: llm.model must not be empty"))
	}
	if c.LLM.EmbeddingModel == "" {
		errs = append(errs, tserr.New(tserr.CodeConfigValidateInvalidValue, "config: llm.embedding_model must not be empty"))
	}

	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: llm.max_tokens must be greater than 0, got %d",
			c.LLM.MaxTokens,
		))
	}

	// Zero disables the spend ceiling; negative budgets are mistakes.
	if c.LLM.BudgetUSD < 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: llm.budget_usd must not be negative, got %g",
			c.LLM.BudgetUSD,
		))
	}

	if c.LLM.Timeout <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: llm.timeout must be greater than 0, got %s",
			c.LLM.Timeout,
		))
	}

	return errs
}

func (c *Config) validateHealth() []error {
	if c.Health.ProbeTimeout <= 0 {
		return []error{tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: health.probe_timeout must be greater than 0, got %s",
			c.Health.ProbeTimeout,
		)}
	}
	return nil
}

func (c *Config) validateIngest() []error {
	var errs []error

	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: ingest.chunk_size must be greater than 0, got %d",
			c.Ingest.ChunkSize,
		))
	}
	if c.Ingest.ChunkOverlap < 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: ingest.chunk_overlap must not be negative, got %d",
			c.Ingest.ChunkOverlap,
		))
	} else if c.Ingest.ChunkSize > 0 && c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: ingest.chunk_overlap must be smaller than chunk_size, got %d >= %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize,
		))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: ingest.workers must be greater than 0, got %d",
			c.Ingest.Workers,
		))
	}

	return errs
}

func (d DependencyConfig) validate(section string) []error {
	var errs []error

	if d.FailureThreshold < 1 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.failure_threshold must be at least 1, got %d", section, d.FailureThreshold))
	}
	if d.SuccessThreshold < 1 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.success_threshold must be at least 1, got %d", section, d.SuccessThreshold))
	}
	if d.OpenTimeout <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.open_timeout must be greater than 0, got %s", section, d.OpenTimeout))
	}
	if d.HalfOpenMaxProbes < 1 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.half_open_max_probes must be at least 1, got %d", section, d.HalfOpenMaxProbes))
	}
	if d.MaxRetries < 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.max_retries must not be negative, got %d", section, d.MaxRetries))
	}
	if d.InitialDelay <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.initial_delay must be greater than 0, got %s", section, d.InitialDelay))
	}
	if d.MaxDelay < d.InitialDelay {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.max_delay must be at least initial_delay, got %s < %s", section, d.MaxDelay, d.InitialDelay))
	}
	if d.ExponentialBase < 1 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.exponential_base must be at least 1, got %g", section, d.ExponentialBase))
	}
	if d.Jitter < 0 || d.Jitter > 1 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.jitter must be between 0 and 1, got %g", section, d.Jitter))
	}
	if d.CallTimeout <= 0 {
		errs = append(errs, tserr.Errorf(tserr.CodeConfigValidateInvalidValue,
			"config: %s.call_timeout must be greater than 0, got %s", section, d.CallTimeout))
	}

	return errs
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", tserr.Errorf(tserr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}
