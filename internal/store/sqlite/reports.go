// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package sqlite implements the report collection on SQLite with the
// sqlite-vec extension for embedding search.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/trendscout-dev/trendscout/internal/store"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// collectionNameRe constrains collection names to safe SQL identifiers,
// since they are interpolated into table names.
var collectionNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Compile-time interface check.
var _ store.Collection = (*ReportCollection)(nil)

// ReportCollection stores report chunks in a documents table and their
// embeddings in a companion vec0 virtual table, joined by document id.
type ReportCollection struct {
	db         *sql.DB
	dimensions int

	docsTable string
	vecsTable string
}

// NewReportCollection opens (or creates) the SQLite database at dbPath and
// migrates the document and vector tables for the named collection.
func NewReportCollection(dbPath, collection string, dimensions int) (*ReportCollection, error) {
	if !collectionNameRe.MatchString(collection) {
		return nil, tserr.New(tserr.CodeStoreInvalidInput, "collection name must be a valid identifier",
			tserr.Field("collection", collection))
	}
	if dimensions < 1 {
		return nil, tserr.New(tserr.CodeStoreInvalidInput, "vector dimensions must be positive",
			tserr.Field("dimensions", dimensions))
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, tserr.Wrap(err, tserr.CodeStoreUnavailable, "creating database directory",
				tserr.Field("path", dbPath))
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, tserr.Wrap(err, tserr.CodeStoreUnavailable, "opening sqlite db",
			tserr.Field("path", dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, tserr.Wrap(err, tserr.CodeStoreUnavailable, "pinging sqlite db",
			tserr.Field("path", dbPath))
	}

	c := &ReportCollection{
		db:         db,
		dimensions: dimensions,
		docsTable:  collection + "_documents",
		vecsTable:  collection + "_vectors",
	}

	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *ReportCollection) migrate() error {
	docsDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	category    TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
)`, c.docsTable)
	if _, err := c.db.Exec(docsDDL); err != nil {
		return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "creating documents table")
	}

	idxDDL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_source ON %s(source)`,
		c.docsTable, c.docsTable,
	)
	if _, err := c.db.Exec(idxDDL); err != nil {
		return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "creating source index")
	}

	vecsDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		c.vecsTable, c.dimensions,
	)
	if _, err := c.db.Exec(vecsDDL); err != nil {
		return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "creating vectors virtual table")
	}

	return nil
}

// Add inserts or replaces documents and their embeddings in one transaction.
func (c *ReportCollection) Add(ctx context.Context, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return err
		}
		if len(doc.Embedding) != c.dimensions {
			return tserr.New(tserr.CodeStoreDocumentAddInvalid, "embedding dimensions mismatch",
				tserr.Field("id", doc.ID),
				tserr.Field("got", len(doc.Embedding)),
				tserr.Field("want", c.dimensions))
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	docQ := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, content, source, page, category, chunk_index, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, c.docsTable)
	delVecQ := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.vecsTable)
	insVecQ := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES (?, ?)`, c.vecsTable)

	for _, doc := range docs {
		blob, err := sqlite_vec.SerializeFloat32(doc.Embedding)
		if err != nil {
			return tserr.Wrap(err, tserr.CodeStoreDocumentAddInvalid, "serializing embedding",
				tserr.Field("id", doc.ID))
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx, docQ,
			doc.ID, doc.Content, doc.Source, doc.Page, doc.Category, doc.ChunkIndex,
			formatTime(createdAt),
		); err != nil {
			return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "inserting document",
				tserr.Field("id", doc.ID))
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, delVecQ, doc.ID); err != nil {
			return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "deleting existing vector",
				tserr.Field("id", doc.ID))
		}
		if _, err := tx.ExecContext(ctx, insVecQ, doc.ID, blob); err != nil {
			return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "inserting vector",
				tserr.Field("id", doc.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "committing documents")
	}
	return nil
}

// Query performs a k-nearest-neighbor search over the vec0 table, joining
// each match back to its document row. A category filter, when present,
// applies to the k nearest matches.
func (c *ReportCollection) Query(ctx context.Context, req store.QueryRequest) ([]store.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Embedding) != c.dimensions {
		return nil, tserr.New(tserr.CodeStoreInvalidInput, "query embedding dimensions mismatch",
			tserr.Field("got", len(req.Embedding)),
			tserr.Field("want", c.dimensions))
	}

	blob, err := sqlite_vec.SerializeFloat32(req.Embedding)
	if err != nil {
		return nil, tserr.Wrap(err, tserr.CodeStoreInvalidInput, "serializing query embedding")
	}

	q := fmt.Sprintf(`SELECT v.id, v.distance, d.content, d.source, d.page, d.category, d.chunk_index, d.created_at
FROM %s v
JOIN %s d ON d.id = v.id
WHERE v.embedding MATCH ? AND k = ?`, c.vecsTable, c.docsTable)
	args := []any{blob, req.TopK}
	if req.Category != "" {
		q += ` AND d.category = ?`
		args = append(args, req.Category)
	}
	q += ` ORDER BY v.distance`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, tserr.Wrap(err, tserr.CodeStoreQueryRejected, "searching documents")
	}
	defer func() { _ = rows.Close() }()

	var results []store.QueryResult
	for rows.Next() {
		var (
			r         store.QueryResult
			createdAt string
		)
		if err := rows.Scan(
			&r.Document.ID, &r.Distance,
			&r.Document.Content, &r.Document.Source, &r.Document.Page,
			&r.Document.Category, &r.Document.ChunkIndex, &createdAt,
		); err != nil {
			return nil, tserr.Wrap(err, tserr.CodeStoreQueryRejected, "scanning search result")
		}
		r.Document.CreatedAt = parseTime(createdAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tserr.Wrap(err, tserr.CodeStoreQueryRejected, "iterating search results")
	}

	return results, nil
}

// Get fetches a document row by id. The embedding is not hydrated.
func (c *ReportCollection) Get(ctx context.Context, id string) (*store.Document, error) {
	q := fmt.Sprintf(`SELECT id, content, source, page, category, chunk_index, created_at
FROM %s WHERE id = ?`, c.docsTable)

	var (
		doc       store.Document
		createdAt string
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&doc.ID, &doc.Content, &doc.Source, &doc.Page,
		&doc.Category, &doc.ChunkIndex, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tserr.New(tserr.CodeStoreDocumentNotFound, "document not found",
			tserr.Field("id", id))
	}
	if err != nil {
		return nil, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "fetching document",
			tserr.Field("id", id))
	}
	doc.CreatedAt = parseTime(createdAt)

	return &doc, nil
}

func (c *ReportCollection) Count(ctx context.Context) (int64, error) {
	var count int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.docsTable)
	if err := c.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "counting documents")
	}
	return count, nil
}

// DeleteBySource removes every chunk ingested from source along with its
// embedding, and reports how many documents were deleted.
func (c *ReportCollection) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	idsQ := fmt.Sprintf(`SELECT id FROM %s WHERE source = ?`, c.docsTable)
	rows, err := tx.QueryContext(ctx, idsQ, source)
	if err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "listing documents by source",
			tserr.FieldSource(source))
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "scanning document id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "iterating document ids")
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	delVecQ := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, c.vecsTable, placeholders)
	if _, err := tx.ExecContext(ctx, delVecQ, args...); err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "deleting vectors",
			tserr.FieldSource(source))
	}

	delDocQ := fmt.Sprintf(`DELETE FROM %s WHERE source = ?`, c.docsTable)
	res, err := tx.ExecContext(ctx, delDocQ, source)
	if err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "deleting documents",
			tserr.FieldSource(source))
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "counting deleted documents")
	}

	if err := tx.Commit(); err != nil {
		return 0, tserr.Wrap(err, tserr.CodeStoreDatabaseFailure, "committing delete")
	}
	return deleted, nil
}

// Close closes the underlying database connection.
func (c *ReportCollection) Close() error {
	return c.db.Close()
}

// formatTime serialises a time for TEXT column storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
