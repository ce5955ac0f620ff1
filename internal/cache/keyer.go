// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Keyer generates deterministic cache keys from request parameters.
//
// Contract:
//   - Determinism: same inputs must produce the same key, regardless of map
//     iteration order.
//   - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from a namespace and the request input.
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

var _ Keyer = (*DefaultKeyer)(nil)

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <namespace>:<hash>
// where hash is the first 16 characters of SHA-256(canonical JSON(input)).
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", tserr.Wrap(err, tserr.CodeCacheEncodeFailure, "canonicalizing cache key input",
			tserr.Field("namespace", namespace))
	}

	hash := sha256.Sum256(canonical)
	return namespace + ":" + hex.EncodeToString(hash[:8]), nil
}

// canonicalize produces a deterministic JSON representation of the input.
// Maps are sorted by key to ensure consistent ordering; structs already
// marshal in declaration order.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
