// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package anthropic

// Exported for white-box testing.
var (
	BuildParams = buildParams
	CollectText = collectText
	DescribeErr = describeErr
)
