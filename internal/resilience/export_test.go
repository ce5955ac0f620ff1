// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package resilience

import "time"

// Backoff exposes the delay computation for bounds tests.
func (r *Retryer) Backoff(n int) time.Duration {
	return r.backoff(n)
}
