// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package resilience

import (
	"sort"
	"sync"

	"github.com/trendscout-dev/trendscout/pkg/health"
)

// Registry is a directory of named circuit breakers, one per downstream
// dependency. It is constructed once during wiring and handed to whoever
// needs a breaker; there is no package-global instance.
type Registry struct {
	mu       sync.RWMutex
	defaults Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers default to the given config.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate returns the breaker for name, creating it on first use. An
// optional config applies only at creation: the first writer wins, and a
// config supplied for an existing breaker is ignored.
func (r *Registry) GetOrCreate(name string, cfg ...Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another caller may have won the race.
	if b, ok := r.breakers[name]; ok {
		return b
	}

	chosen := r.defaults
	if len(cfg) > 0 {
		chosen = cfg[0].withDefaults()
	}

	b = NewBreaker(name, chosen)
	r.breakers[name] = b
	return b
}

// AllStats returns a snapshot of every breaker keyed by dependency name.
func (r *Registry) AllStats() map[string]health.BreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]health.BreakerStats, len(r.breakers))
	for name, b := range r.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// OpenBreakers returns the sorted names of breakers currently OPEN. Used by
// the health aggregator to report partial degradation.
func (r *Registry) OpenBreakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}
