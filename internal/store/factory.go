// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package store

import (
	"sync"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// defaultVectorDimensions matches OpenAI text-embedding-3-small.
const defaultVectorDimensions = 1536

// Config selects and parameterizes a storage backend.
type Config struct {
	// Backend names a registered backend. Empty defaults to "sqlite".
	Backend string

	// Path is the database file path (backend-specific).
	Path string

	// Collection is the logical collection name, used to derive table
	// names. Empty defaults to "trend_reports".
	Collection string

	// VectorDimensions is the embedding width. Zero defaults to 1536.
	VectorDimensions int
}

// Factory creates a Collection for a backend.
type Factory func(cfg Config) (Collection, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Open creates a Collection using the backend named in cfg, applying
// defaults for backend name, collection name and vector dimensions.
func Open(cfg Config) (Collection, error) {
	if cfg.Backend == "" {
		cfg.Backend = "sqlite"
	}
	if cfg.Collection == "" {
		cfg.Collection = "trend_reports"
	}
	if cfg.VectorDimensions <= 0 {
		cfg.VectorDimensions = defaultVectorDimensions
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, tserr.New(tserr.CodeStoreBackendUnsupported, "unsupported storage backend",
			tserr.Field("backend", cfg.Backend))
	}

	return factory(cfg)
}
