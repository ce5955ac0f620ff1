// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trendscout-dev/trendscout/internal/cache"
	"github.com/trendscout-dev/trendscout/internal/provider"
	"github.com/trendscout-dev/trendscout/internal/search"
	"github.com/trendscout-dev/trendscout/internal/server"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, tserr.Wrap(err, tserr.CodeCLISetupFailure, "creating server")
	}

	// No-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	if err := srv.RegisterServices(server.Services{
		Search:   stubSearch{},
		Health:   stubHealth{},
		Cache:    stubCache{},
		Cost:     stubCost{},
		Breakers: stubBreakers{},
	}); err != nil {
		return nil, tserr.Wrap(err, tserr.CodeCLISetupFailure, "registering services")
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubSearch struct{}

func (stubSearch) Search(context.Context, search.Request) (*search.Response, error) {
	return nil, nil
}

func (stubSearch) Synthesize(context.Context, search.Request) (*search.SynthesizedResponse, error) {
	return nil, nil
}

type stubHealth struct{}

func (stubHealth) Check(context.Context) health.Report { return health.Report{} }

type stubCache struct{}

func (stubCache) Stats() cache.Stats          { return cache.Stats{} }
func (stubCache) Clear(context.Context) error { return nil }

type stubCost struct{}

func (stubCost) Stats() provider.CostStats { return provider.CostStats{} }

type stubBreakers struct{}

func (stubBreakers) AllStats() map[string]health.BreakerStats { return nil }
