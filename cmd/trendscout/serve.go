// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trendscout-dev/trendscout/internal/config"
	"github.com/trendscout-dev/trendscout/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trendscout API server",
		Long:  "Load configuration, open the vector store, wire the search pipeline, and serve the HTTP API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(verbose)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"listen", cfg.Server.Listen,
		"backend", cfg.Storage.Backend,
		"collection", cfg.Search.Collection,
		"provider", cfg.LLM.Provider,
		"cache_enabled", cfg.Cache.Enabled,
	)

	metrics.Init()

	app, err := wireApp(cfg, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing app", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Server.Start(ctx); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}
