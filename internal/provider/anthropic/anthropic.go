// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package anthropic implements provider.Provider using the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

const (
	// DefaultModel is used when a request does not name one.
	DefaultModel = "claude-sonnet-4-5"

	// DefaultMaxTokens caps completions when the request leaves it unset.
	DefaultMaxTokens = 1024
)

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server

	// RequestTimeout bounds each HTTP request inside the SDK client. Zero
	// keeps the SDK default.
	RequestTimeout time.Duration
}

// Provider implements provider.Provider using non-streaming message calls.
type Provider struct {
	client anthropicsdk.Client
	config Config
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Anthropic provider. Returns an error if the API key is
// missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"anthropic: missing api_key in config",
			tserr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The resilience wrapper owns retries; the SDK must not stack its
		// own on top.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	client := anthropicsdk.NewClient(opts...)
	return &Provider{client: client, config: cfg}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// Generate runs one non-streaming completion.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"anthropic: empty prompt",
			tserr.FieldProvider("anthropic"))
	}

	params := buildParams(req)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("anthropic", string(params.Model), "error").Inc()
		return nil, describeErr(err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("anthropic", string(msg.Model), "success").Inc()

	text := collectText(msg)
	if text == "" {
		return nil, tserr.New(tserr.CodeProviderResponseInvalid,
			"anthropic: response contained no text",
			tserr.FieldProvider("anthropic"))
	}

	return &provider.GenerateResponse{
		Text:  text,
		Model: string(msg.Model),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a provider.GenerateRequest into Anthropic SDK
// MessageNewParams.
func buildParams(req provider.GenerateRequest) anthropicsdk.MessageNewParams {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	return params
}

// collectText concatenates the text blocks of a message, skipping any other
// content block types.
func collectText(msg *anthropicsdk.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// describeErr classifies an SDK error into the provider taxonomy. Vendor 4xx
// responses (except rate limits) mark the request itself as invalid; rate
// limits, 5xx and transport failures are upstream failures the caller may
// retry. Context errors pass through untouched.
func describeErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *anthropicsdk.Error
	if errors.As(err, &apierr) &&
		apierr.StatusCode >= 400 && apierr.StatusCode < 500 && apierr.StatusCode != 429 {
		return tserr.Wrap(err, tserr.CodeProviderRequestInvalid,
			"anthropic rejected the request",
			tserr.FieldProvider("anthropic"))
	}

	return tserr.Wrap(err, tserr.CodeProviderUpstreamFailure,
		"anthropic request failed",
		tserr.FieldProvider("anthropic"))
}
