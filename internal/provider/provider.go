// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package provider defines the narrow seams between the search pipeline and
// LLM vendors: text generation for trend synthesis and embedding generation
// for vector search. Concrete backends live in subpackages (anthropic,
// openai); the rest of the service depends only on these interfaces.
package provider

import (
	"context"
)

// Provider generates text completions.
type Provider interface {
	// Name identifies the vendor, e.g. "anthropic" or "openai".
	Name() string
	// Generate produces a single non-streaming completion.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Embedder turns text into vector embeddings.
type Embedder interface {
	Name() string
	// Embed returns one embedding per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the width of the vectors Embed returns.
	Dimensions() int
}

// GenerateRequest describes one completion call.
type GenerateRequest struct {
	Model  string
	System string // optional system prompt
	Prompt string

	// MaxTokens caps the completion length; zero takes the backend default.
	MaxTokens int

	// Temperature is the sampling temperature; zero leaves the vendor
	// default in place.
	Temperature float64
}

// GenerateResponse carries the completion text and token accounting.
type GenerateResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total is the combined token count of both directions.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
