// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package cache provides the bounded TTL cache in front of the search
// pipeline. Entries are opaque byte slices; the keyer turns request
// parameters into deterministic keys.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache is the interface for caching encoded search responses.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Get never errors; it returns (nil, false) on miss.
//   - TTL and capacity are the cache's own policy, not per-call inputs.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value under the policy TTL.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a cached value. Idempotent, no error on miss.
	Delete(ctx context.Context, key string) error

	// Clear drops every entry.
	Clear(ctx context.Context) error

	// Stats reports the cache counters for the status surface.
	Stats() Stats
}

// Policy configures caching behaviour.
type Policy struct {
	// Enabled gates the whole cache; a disabled cache stores nothing and
	// always misses without counting.
	Enabled bool

	// TTL is how long entries stay fresh. Non-positive disables caching.
	TTL time.Duration

	// MaxEntries bounds the cache; the least recently used entry is
	// evicted when full. Non-positive means unbounded.
	MaxEntries int

	// Name labels the cache in metrics.
	Name string
}

// DefaultPolicy returns the standard search-cache policy: enabled, one hour
// TTL, 512 entries.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:    true,
		TTL:        time.Hour,
		MaxEntries: 512,
		Name:       "search",
	}
}

// Stats is the wire shape of the cache counters.
type Stats struct {
	Enabled        bool    `json:"enabled"`
	Entries        int     `json:"entries"`
	MaxEntries     int     `json:"max_entries"`
	TTLSeconds     float64 `json:"ttl_seconds"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
