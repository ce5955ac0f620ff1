// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package store

import (
	"time"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Document is a single report chunk with its embedding and provenance.
type Document struct {
	ID      string
	Content string

	// Source is the report file the chunk was cut from, e.g.
	// "q3_consumer_trends.md".
	Source string

	// Page is the 1-based page (or section) within the source. Zero means
	// unknown.
	Page int

	// Category is the trend category assigned at ingestion time.
	Category string

	// ChunkIndex is the position of this chunk within its source document.
	ChunkIndex int

	Embedding []float32
	CreatedAt time.Time
}

// Validate checks the fields a backend needs before persisting.
func (d Document) Validate() error {
	switch {
	case d.ID == "":
		return tserr.New(tserr.CodeStoreDocumentAddInvalid, "document id is required")
	case d.Content == "":
		return tserr.New(tserr.CodeStoreDocumentAddInvalid, "document content is required",
			tserr.Field("id", d.ID))
	case len(d.Embedding) == 0:
		return tserr.New(tserr.CodeStoreDocumentAddInvalid, "document embedding is required",
			tserr.Field("id", d.ID))
	case d.Source == "":
		return tserr.New(tserr.CodeStoreDocumentAddInvalid, "document source is required",
			tserr.Field("id", d.ID))
	}
	return nil
}

// QueryRequest asks for the TopK nearest documents to Embedding.
type QueryRequest struct {
	Embedding []float32
	TopK      int

	// Category, when set, restricts results to documents in that category.
	Category string
}

func (r QueryRequest) Validate() error {
	switch {
	case len(r.Embedding) == 0:
		return tserr.New(tserr.CodeStoreInvalidInput, "query embedding is required")
	case r.TopK < 1:
		return tserr.New(tserr.CodeStoreInvalidInput, "top_k must be at least 1",
			tserr.Field("top_k", r.TopK))
	}
	return nil
}

// QueryResult pairs a matched document with its distance from the query
// embedding. Lower distance means more similar; 0.0 is an exact match.
type QueryResult struct {
	Document Document
	Distance float64
}
