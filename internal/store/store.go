// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package store defines the report collection contract and the resilient
// wrapper every caller goes through. Backends register themselves with the
// factory; errors carry pkg/errors codes so callers can tell connection
// failures, rejected queries, and missing documents apart.
package store

import "context"

// Collection is a named set of report chunks with embedding search.
type Collection interface {
	// Add inserts or replaces documents along with their embeddings.
	Add(ctx context.Context, docs []Document) error

	// Query returns the k nearest documents to the request embedding,
	// closest first.
	Query(ctx context.Context, req QueryRequest) ([]QueryResult, error)

	// Get fetches a single document by id. The stored embedding is not
	// hydrated.
	Get(ctx context.Context, id string) (*Document, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context) (int64, error)

	// DeleteBySource removes every chunk ingested from the named source
	// document and reports how many were deleted.
	DeleteBySource(ctx context.Context, source string) (int64, error)

	Close() error
}
