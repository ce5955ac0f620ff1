// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package ingest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscout-dev/trendscout/internal/ingest"
	"github.com/trendscout-dev/trendscout/internal/search"
	"github.com/trendscout-dev/trendscout/internal/store"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

type fakeCollection struct {
	mu              sync.Mutex
	docs            []store.Document
	deleted         map[string]int
	addErr          error
	deleteErr       error
	deleteReturns   int64
	addBeforeDelete bool
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{deleted: make(map[string]int)}
}

func (f *fakeCollection) Add(_ context.Context, docs []store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	for _, doc := range docs {
		if f.deleted[doc.Source] == 0 {
			f.addBeforeDelete = true
		}
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func (f *fakeCollection) Query(context.Context, store.QueryRequest) ([]store.QueryResult, error) {
	return nil, nil
}

func (f *fakeCollection) Get(context.Context, string) (*store.Document, error) {
	return nil, tserr.New(tserr.CodeStoreDocumentNotFound, "not stored")
}

func (f *fakeCollection) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), nil
}

func (f *fakeCollection) DeleteBySource(_ context.Context, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted[source]++
	return f.deleteReturns, nil
}

func (f *fakeCollection) Close() error { return nil }

func (f *fakeCollection) allDocs() []store.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Document(nil), f.docs...)
}

func (f *fakeCollection) deletions(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[source]
}

type fakeEmbedder struct {
	mu      sync.Mutex
	err     error
	calls   int
	batches [][]string
}

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return 3 }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}

func (f *fakeEmbedder) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) embedBatches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func writeReport(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mustNewPipeline(t *testing.T, cfg ingest.Config) *ingest.Pipeline {
	t.Helper()
	p, err := ingest.NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

// numberedWords returns n space-separated words that match no taxonomy
// keyword.
func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []ingest.Chunk
	}{
		{
			name: "empty text",
			text: "",
			size: 5,
		},
		{
			name: "whitespace only",
			text: "  \n\t  ",
			size: 5,
		},
		{
			name: "shorter than window",
			text: "retail media networks consolidate",
			size: 10,
			want: []ingest.Chunk{
				{Text: "retail media networks consolidate", Index: 0, Page: 1},
			},
		},
		{
			name: "whitespace collapses",
			text: "alpha\n\n  beta\t gamma",
			size: 10,
			want: []ingest.Chunk{
				{Text: "alpha beta gamma", Index: 0, Page: 1},
			},
		},
		{
			name: "exact windows without overlap",
			text: "a b c d e f",
			size: 3,
			want: []ingest.Chunk{
				{Text: "a b c", Index: 0, Page: 1},
				{Text: "d e f", Index: 1, Page: 1},
			},
		},
		{
			name:    "overlapping windows",
			text:    "a b c d e f g h i j",
			size:    6,
			overlap: 2,
			want: []ingest.Chunk{
				{Text: "a b c d e f", Index: 0, Page: 1},
				{Text: "e f g h i j", Index: 1, Page: 1},
			},
		},
		{
			name:    "overlap as wide as window steps a full window",
			text:    "a b c d e f",
			size:    3,
			overlap: 3,
			want: []ingest.Chunk{
				{Text: "a b c", Index: 0, Page: 1},
				{Text: "d e f", Index: 1, Page: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ingest.SplitChunks(tt.text, tt.size, tt.overlap)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitChunks_PageEstimates(t *testing.T) {
	chunks := ingest.SplitChunks(numberedWords(1200), 300, 50)
	require.Len(t, chunks, 5)

	// Windows start every 250 words; pages turn every 500.
	wantPages := []int{1, 1, 2, 2, 3}
	for i, chunk := range chunks {
		assert.Equal(t, wantPages[i], chunk.Page, "chunk %d", i)
		assert.Equal(t, i, chunk.Index)
	}
	assert.Len(t, strings.Fields(chunks[4].Text), 200, "tail window holds the remaining words")
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	_, err := ingest.NewPipeline(ingest.Config{Embedder: &fakeEmbedder{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection")

	_, err = ingest.NewPipeline(ingest.Config{Collection: newFakeCollection()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder")

	_, err = ingest.NewPipeline(ingest.Config{
		Collection:   newFakeCollection(),
		Embedder:     &fakeEmbedder{},
		ChunkSize:    100,
		ChunkOverlap: 100,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestPipeline_RunIngestsReports(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "alpha_report.md", numberedWords(10))
	writeReport(t, dir, "beta_report.txt",
		"Advertising campaign budgets shift toward influencer marketing and brand partnerships.")
	writeReport(t, dir, "notes.json", "not a report")
	writeReport(t, dir, filepath.Join("archive", "gamma.md"),
		"Cloud adoption accelerates artificial intelligence deployment.")

	col := newFakeCollection()
	emb := &fakeEmbedder{}
	p := mustNewPipeline(t, ingest.Config{
		Collection:   col,
		Embedder:     emb,
		ChunkSize:    6,
		ChunkOverlap: 2,
		Workers:      2,
		BatchSize:    2,
	})

	summary, err := p.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 5, summary.Chunks)

	docs := col.allDocs()
	require.Len(t, docs, 5)

	bySource := map[string][]store.Document{}
	seenIDs := map[string]bool{}
	for _, doc := range docs {
		bySource[doc.Source] = append(bySource[doc.Source], doc)
		_, err := uuid.Parse(doc.ID)
		assert.NoError(t, err, "doc id %q should be a uuid", doc.ID)
		assert.False(t, seenIDs[doc.ID], "doc ids must be unique")
		seenIDs[doc.ID] = true
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, doc.Embedding)
		assert.Equal(t, 1, doc.Page)
		assert.False(t, doc.CreatedAt.IsZero())
	}

	assert.Len(t, bySource["alpha_report.md"], 2)
	assert.Len(t, bySource["beta_report.txt"], 2)
	assert.Len(t, bySource["gamma.md"], 1)
	assert.NotContains(t, bySource, "notes.json")

	for _, doc := range bySource["alpha_report.md"] {
		assert.Equal(t, string(search.CategoryGeneral), doc.Category)
	}
	for _, doc := range bySource["beta_report.txt"] {
		assert.Equal(t, string(search.CategoryMarketing), doc.Category)
	}
	assert.Equal(t, string(search.CategoryTechnology), bySource["gamma.md"][0].Category)

	// Each file's previous chunks are cleared exactly once, before any add.
	for _, source := range []string{"alpha_report.md", "beta_report.txt", "gamma.md"} {
		assert.Equal(t, 1, col.deletions(source), "source %s", source)
	}
	require.False(t, col.addBeforeDelete, "adds must come after the source's delete")

	// Two-chunk files fit one batch each at BatchSize 2.
	assert.Equal(t, 3, emb.embedCalls())
	for _, batch := range emb.embedBatches() {
		assert.LessOrEqual(t, len(batch), 2)
	}
}

func TestPipeline_RunSplitsLargeFilesIntoBatches(t *testing.T) {
	dir := t.TempDir()
	// 26 words at size 6 / overlap 2 is 6 windows: starts 0,4,8,12,16,20.
	writeReport(t, dir, "big.md", numberedWords(26))

	col := newFakeCollection()
	emb := &fakeEmbedder{}
	p := mustNewPipeline(t, ingest.Config{
		Collection:   col,
		Embedder:     emb,
		ChunkSize:    6,
		ChunkOverlap: 2,
		Workers:      1,
		BatchSize:    4,
	})

	summary, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Chunks)
	assert.Equal(t, 2, emb.embedCalls())

	batches := emb.embedBatches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 2)

	var indices []int
	for _, doc := range col.allDocs() {
		indices = append(indices, doc.ChunkIndex)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, indices)
}

func TestPipeline_RunSkipsFilesWithoutText(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "empty.md", "   \n\t  ")
	writeReport(t, dir, "real.md", "subscription retention loyalty churn onboarding")

	col := newFakeCollection()
	p := mustNewPipeline(t, ingest.Config{Collection: col, Embedder: &fakeEmbedder{}})

	summary, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Chunks)

	assert.Equal(t, 0, col.deletions("empty.md"), "skipped files keep their stored chunks")
}

func TestPipeline_RunWithoutReports(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		p := mustNewPipeline(t, ingest.Config{Collection: newFakeCollection(), Embedder: &fakeEmbedder{}})
		_, err := p.Run(context.Background(), t.TempDir())
		require.Error(t, err)
		assert.True(t, tserr.HasCode(err, tserr.CodeIngestInputInvalid))
	})

	t.Run("unsupported extensions only", func(t *testing.T) {
		dir := t.TempDir()
		writeReport(t, dir, "report.pdf", "binary")
		p := mustNewPipeline(t, ingest.Config{Collection: newFakeCollection(), Embedder: &fakeEmbedder{}})
		_, err := p.Run(context.Background(), dir)
		require.Error(t, err)
		assert.True(t, tserr.HasCode(err, tserr.CodeIngestInputInvalid))
	})

	t.Run("missing directory", func(t *testing.T) {
		p := mustNewPipeline(t, ingest.Config{Collection: newFakeCollection(), Embedder: &fakeEmbedder{}})
		_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.True(t, tserr.HasCode(err, tserr.CodeIngestReadFailure))
	})
}

func TestPipeline_RunEmbedFailureCancelsRun(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "report.md", numberedWords(10))

	col := newFakeCollection()
	emb := &fakeEmbedder{err: tserr.New(tserr.CodeProviderUpstreamFailure, "embedding service down")}
	p := mustNewPipeline(t, ingest.Config{Collection: col, Embedder: emb, Workers: 1})

	_, err := p.Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, tserr.HasCode(err, tserr.CodeProviderUpstreamFailure),
		"the embed failure's own code survives wrapping, got %v", err)
	assert.Empty(t, col.allDocs())
}

func TestPipeline_RunStoreFailureCancelsRun(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "report.md", numberedWords(10))

	col := newFakeCollection()
	col.addErr = tserr.New(tserr.CodeStoreUnavailable, "database unreachable")
	p := mustNewPipeline(t, ingest.Config{Collection: col, Embedder: &fakeEmbedder{}, Workers: 1})

	_, err := p.Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, tserr.IsUnavailable(err))
}

func TestPipeline_RunDeleteFailureStopsBeforeEmbedding(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "report.md", numberedWords(10))

	col := newFakeCollection()
	col.deleteErr = tserr.New(tserr.CodeStoreUnavailable, "database unreachable")
	emb := &fakeEmbedder{}
	p := mustNewPipeline(t, ingest.Config{Collection: col, Embedder: emb, Workers: 1})

	_, err := p.Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, tserr.IsUnavailable(err))
	assert.Zero(t, emb.embedCalls())
}

func TestPipeline_RunHonorsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "report.md", numberedWords(100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := mustNewPipeline(t, ingest.Config{Collection: newFakeCollection(), Embedder: &fakeEmbedder{}})
	_, err := p.Run(ctx, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
