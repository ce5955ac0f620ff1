// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
	"github.com/trendscout-dev/trendscout/pkg/health"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running trendscout server",
		Long:  "Query the running server's status endpoint and display version, uptime, and circuit breaker states.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:8080", "server address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	client := newAPIClient(addr)
	var body struct {
		Service         string                         `json:"service"`
		Version         string                         `json:"version"`
		UptimeSeconds   float64                        `json:"uptime_seconds"`
		CircuitBreakers map[string]health.BreakerStats `json:"circuit_breakers"`
	}
	if err := client.getJSON("/api/v1/status", &body); err != nil {
		if tserr.HasCode(err, tserr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	uptime := time.Duration(body.UptimeSeconds * float64(time.Second)).Round(time.Second)
	_, _ = fmt.Fprintf(out, "%s %s at %s (up %s)\n", body.Service, body.Version, addr, uptime)

	names := make([]string, 0, len(body.CircuitBreakers))
	for name := range body.CircuitBreakers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := body.CircuitBreakers[name]
		_, _ = fmt.Fprintf(out, "  %-8s %s (%d calls, %d failures)\n",
			name, stats.State, stats.TotalCalls, stats.TotalFailures)
	}
	return nil
}
