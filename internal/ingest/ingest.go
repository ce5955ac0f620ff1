// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package ingest loads trend reports into the vector store. A pipeline walks
// a reports directory, splits each document into overlapping word windows,
// categorizes and embeds the chunks in batches, and writes them through the
// guarded collection. Re-ingesting a file replaces its previous chunks.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/search"
	"github.com/trendscout-dev/trendscout/internal/store"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50
	DefaultWorkers      = 4

	// DefaultBatchSize caps how many chunks one Embed call carries.
	DefaultBatchSize = 100

	// wordsPerPage approximates a printed report page; chunk word offsets
	// map to 1-based page estimates with it.
	wordsPerPage = 500
)

// Chunk is one word window cut from a source document.
type Chunk struct {
	// Text holds the window's words joined by single spaces.
	Text string

	// Index is the chunk's position within its source, starting at zero.
	Index int

	// Page estimates the 1-based page the window starts on.
	Page int
}

// SplitChunks cuts text into overlapping word windows of size words, each
// sharing overlap words with its predecessor. Whitespace runs collapse to
// single spaces; text with no words yields nil. The last window ends the
// sequence even when shorter than size.
func SplitChunks(text string, size, overlap int) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size < 1 {
		size = DefaultChunkSize
	}
	step := size - overlap
	if step < 1 {
		step = size
	}

	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, Chunk{
			Text:  strings.Join(words[start:end], " "),
			Index: len(chunks),
			Page:  start/wordsPerPage + 1,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Config wires a Pipeline. Collection and Embedder are required; size knobs
// left zero take the package defaults.
type Config struct {
	Collection store.Collection
	Embedder   provider.Embedder

	// ChunkSize is the word-window width.
	ChunkSize int

	// ChunkOverlap is how many words consecutive windows share. Must be
	// smaller than ChunkSize.
	ChunkOverlap int

	// Workers bounds how many batches embed and write concurrently.
	Workers int

	// BatchSize caps chunks per Embed call.
	BatchSize int

	Logger *slog.Logger
}

// Pipeline ingests report files into the vector store.
type Pipeline struct {
	collection store.Collection
	embedder   provider.Embedder
	cfg        Config
	logger     *slog.Logger
}

// NewPipeline builds an ingestion pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Collection == nil {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "ingest pipeline requires a collection")
	}
	if cfg.Embedder == nil {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "ingest pipeline requires an embedder")
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "chunk overlap must be smaller than chunk size",
			tserr.Field("chunk_size", cfg.ChunkSize),
			tserr.Field("chunk_overlap", cfg.ChunkOverlap))
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		collection: cfg.Collection,
		embedder:   cfg.Embedder,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Summary reports what one ingestion run accomplished.
type Summary struct {
	// Files counts report files that produced chunks.
	Files int

	// Skipped counts files with no extractable words.
	Skipped int

	// Chunks counts document chunks written to the store.
	Chunks int

	Elapsed time.Duration
}

// job is one batch of chunks from a single source file.
type job struct {
	source string
	chunks []Chunk
}

// Run ingests every .txt and .md file under dir. Files split into chunks on
// the calling goroutine; embedding and writing fan out over the configured
// workers, and the first failure cancels the run.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()

	files, err := listReportFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, tserr.New(tserr.CodeIngestInputInvalid, "no report files found",
			tserr.Field("dir", dir))
	}

	p.logger.Info("starting ingestion",
		"dir", dir,
		"files", len(files),
		"chunk_size", p.cfg.ChunkSize,
		"chunk_overlap", p.cfg.ChunkOverlap,
		"workers", p.cfg.Workers)

	var (
		summary Summary
		written atomic.Int64
	)

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job)

	// Producer: read, chunk, and clear previous versions file by file.
	// Workers own the expensive embed and write round trips.
	g.Go(func() error {
		defer close(jobs)
		for _, path := range files {
			text, err := os.ReadFile(path)
			if err != nil {
				return tserr.Wrapf(err, tserr.CodeIngestReadFailure, "reading report %s", path)
			}

			source := filepath.Base(path)
			chunks := SplitChunks(string(text), p.cfg.ChunkSize, p.cfg.ChunkOverlap)
			if len(chunks) == 0 {
				p.logger.Warn("report has no extractable text, skipping", "file", source)
				summary.Skipped++
				continue
			}
			summary.Files++

			if err := p.replacePrevious(ctx, source); err != nil {
				return err
			}

			for batchStart := 0; batchStart < len(chunks); batchStart += p.cfg.BatchSize {
				batchEnd := min(batchStart+p.cfg.BatchSize, len(chunks))
				select {
				case jobs <- job{source: source, chunks: chunks[batchStart:batchEnd]}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})

	for range p.cfg.Workers {
		g.Go(func() error {
			for j := range jobs {
				n, err := p.flush(ctx, j)
				if err != nil {
					return err
				}
				written.Add(int64(n))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Chunks = int(written.Load())
	summary.Elapsed = time.Since(start)
	p.logger.Info("ingestion complete",
		"files", summary.Files,
		"skipped", summary.Skipped,
		"chunks", summary.Chunks,
		"elapsed", summary.Elapsed)
	return &summary, nil
}

// replacePrevious drops chunks left over from an earlier ingestion of source,
// so re-running ingest never duplicates a report.
func (p *Pipeline) replacePrevious(ctx context.Context, source string) error {
	deleted, err := p.collection.DeleteBySource(ctx, source)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return tserr.Wrapf(err, tserr.CodeStoreCallFailure, "clearing previous chunks of %s", source)
	}
	if deleted > 0 {
		p.logger.Info("replacing previously ingested report", "file", source, "previous_chunks", deleted)
	}
	return nil
}

// flush embeds one batch and writes the resulting documents.
func (p *Pipeline) flush(ctx context.Context, j job) (int, error) {
	texts := make([]string, len(j.chunks))
	for i, c := range j.chunks {
		texts[i] = c.Text
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, tserr.Wrapf(err, tserr.CodeSearchEmbedFailure, "embedding chunks from %s", j.source)
	}
	if len(vecs) != len(texts) {
		return 0, tserr.New(tserr.CodeProviderResponseInvalid, "embedding count does not match batch",
			tserr.Field("want", len(texts)),
			tserr.Field("got", len(vecs)))
	}

	now := time.Now().UTC()
	docs := make([]store.Document, len(j.chunks))
	perCategory := make(map[search.Category]int, len(j.chunks))
	for i, c := range j.chunks {
		category := search.Categorize(c.Text)
		perCategory[category]++
		docs[i] = store.Document{
			ID:         uuid.NewString(),
			Content:    c.Text,
			Source:     j.source,
			Page:       c.Page,
			Category:   string(category),
			ChunkIndex: c.Index,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}

	if err := p.collection.Add(ctx, docs); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, tserr.Wrapf(err, tserr.CodeStoreCallFailure, "writing chunks from %s", j.source)
	}

	for category, n := range perCategory {
		metrics.DocumentsIngested.WithLabelValues(string(category)).Add(float64(n))
	}
	p.logger.Debug("batch written", "file", j.source, "chunks", len(docs))
	return len(docs), nil
}

// listReportFiles walks dir and returns every .txt and .md file in lexical
// order.
func listReportFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, tserr.Wrapf(err, tserr.CodeIngestReadFailure, "walking reports directory %s", dir)
	}
	return files, nil
}
