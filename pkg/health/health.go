// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package health

import "time"

// Status is the aggregate health of the service. Precedence when combining:
// unhealthy > degraded > healthy.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Per-probe outcome markers used in ProbeResult.Status. ProbeWarning marks
// advisory entries such as the open-breaker scan.
const (
	ProbeOK      = "ok"
	ProbeError   = "error"
	ProbeWarning = "warning"
)

// ProbeResult is the outcome of a single health probe. Exactly one of
// Result or Error is set, depending on Status.
type ProbeResult struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report is the full health document served by GET /health. All fields are
// point-in-time snapshots safe to serialize to JSON.
type Report struct {
	Status    Status                 `json:"status"`
	Details   map[string]ProbeResult `json:"details"`
	CheckedAt time.Time              `json:"checked_at"`
}

// BreakerStats is the per-breaker snapshot served by the status endpoint.
// Field names are a stable wire contract consumed by dashboards.
type BreakerStats struct {
	State               string        `json:"state"`
	TotalCalls          int64         `json:"total_calls"`
	TotalSuccesses      int64         `json:"total_successes"`
	TotalFailures       int64         `json:"total_failures"`
	CurrentFailureCount int           `json:"current_failure_count"`
	LastStateChange     time.Time     `json:"last_state_change"`
	Config              BreakerConfig `json:"config"`
}

// BreakerConfig echoes the tuning a breaker was created with.
type BreakerConfig struct {
	FailureThreshold   int     `json:"failure_threshold"`
	SuccessThreshold   int     `json:"success_threshold"`
	OpenTimeoutSeconds float64 `json:"open_timeout_seconds"`
	HalfOpenMaxProbes  int     `json:"half_open_max_probes"`
}
