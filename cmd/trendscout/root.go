// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root trendscout command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendscout",
		Short:         "Trendscout — resilient search over trend reports",
		Long:          "Trendscout ingests trend reports into a vector store and serves semantic search with LLM synthesis behind circuit breakers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags. Config resolution itself lives in internal/config; the
	// flag only names the file.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// newLogger builds the process logger. Verbose switches to debug level.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
