// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendscout-dev/trendscout/internal/store"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "trendscout-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// testDoc builds a minimal valid document for the 3-dimensional test
// collections.
func testDoc(id, content, source, category string, embedding []float32) store.Document {
	return store.Document{
		ID:        id,
		Content:   content,
		Source:    source,
		Category:  category,
		Embedding: embedding,
	}
}
