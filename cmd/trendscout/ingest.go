// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trendscout-dev/trendscout/internal/config"
	"github.com/trendscout-dev/trendscout/internal/ingest"
	"github.com/trendscout-dev/trendscout/internal/resilience"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <reports-dir>",
		Short: "Ingest trend reports into the vector store",
		Long:  "Chunk, embed, and write every .txt and .md report under the given directory. Re-ingesting a file replaces its earlier chunks.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().Int("chunk-size", 0, "words per chunk (default from config)")
	cmd.Flags().Int("chunk-overlap", 0, "words shared between neighbouring chunks (default from config)")
	cmd.Flags().Int("workers", 0, "concurrent embedding workers (default from config)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(verbose)
	slog.SetDefault(logger)

	chunkSize := cfg.Ingest.ChunkSize
	if v, _ := cmd.Flags().GetInt("chunk-size"); v > 0 {
		chunkSize = v
	}
	chunkOverlap := cfg.Ingest.ChunkOverlap
	if v, _ := cmd.Flags().GetInt("chunk-overlap"); v > 0 {
		chunkOverlap = v
	}
	workers := cfg.Ingest.Workers
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		workers = v
	}

	// Ingestion writes through the same guarded collection the server
	// reads from, so a failing store trips the same breaker.
	breakers := resilience.NewRegistry(resilience.DefaultConfig())
	collection, err := openCollection(cfg, breakers)
	if err != nil {
		return err
	}
	defer func() { _ = collection.Close() }()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Collection:   collection,
		Embedder:     embedder,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Workers:      workers,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, args[0])
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %d files in %s (%d skipped)\n",
		summary.Chunks, summary.Files, summary.Elapsed.Round(time.Millisecond), summary.Skipped)
	return err
}
