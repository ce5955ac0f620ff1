// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package search

var (
	NormalizeRequest      = normalizeRequest
	Sanitize              = sanitize
	DetectPromptInjection = detectPromptInjection
	Relevance             = relevance
	SynthesisPrompt       = synthesisPrompt
)
