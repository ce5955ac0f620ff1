// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package openai

// Exported for white-box testing.
var (
	BuildParams = buildParams
	DescribeErr = describeErr
)
