// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

// Package openai implements provider.Provider and provider.Embedder using
// the OpenAI chat completions and embeddings APIs.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/trendscout-dev/trendscout/internal/metrics"
	"github.com/trendscout-dev/trendscout/internal/provider"
	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

const (
	// DefaultModel is used when a generation request does not name one.
	DefaultModel = "gpt-4.1-mini"

	// DefaultMaxTokens caps completions when the request leaves it unset.
	DefaultMaxTokens = 1024

	// DefaultEmbeddingModel is the embedder default.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimensions matches the default vector store width.
	DefaultEmbeddingDimensions = 1536
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server

	// RequestTimeout bounds each HTTP request inside the SDK client. Zero
	// keeps the SDK default.
	RequestTimeout time.Duration
}

// Provider implements provider.Provider using non-streaming chat completion
// calls.
type Provider struct {
	client openaisdk.Client
	config Config
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new OpenAI provider. Returns an error if the API key is
// missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"openai: missing api_key in config",
			tserr.FieldProvider("openai"))
	}

	// The resilience wrapper owns retries; the SDK must not stack its own
	// on top.
	opts := append(clientOptions(cfg), option.WithMaxRetries(0))
	client := openaisdk.NewClient(opts...)
	return &Provider{client: client, config: cfg}, nil
}

func clientOptions(cfg Config) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return opts
}

func (p *Provider) Name() string { return "openai" }

// Generate runs one non-streaming completion.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"openai: empty prompt",
			tserr.FieldProvider("openai"))
	}

	params := buildParams(req)
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("openai", string(params.Model), "error").Inc()
		return nil, describeErr(err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("openai", completion.Model, "success").Inc()

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, tserr.New(tserr.CodeProviderResponseInvalid,
			"openai: response contained no text",
			tserr.FieldProvider("openai"))
	}

	return &provider.GenerateResponse{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// buildParams converts a provider.GenerateRequest into OpenAI SDK
// ChatCompletionNewParams. The system prompt becomes a leading system
// message.
func buildParams(req provider.GenerateRequest) openaisdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))

	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	return params
}

// EmbedderConfig holds OpenAI embedder configuration.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimensions defaults to 1536 and must match the vector store width.
	Dimensions int

	// RequestTimeout bounds each HTTP request inside the SDK client. Embed
	// calls run outside the resilience wrapper, so this is their only bound
	// beyond the caller's context. Zero keeps the SDK default.
	RequestTimeout time.Duration
}

// Embedder implements provider.Embedder using the embeddings API.
type Embedder struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

var _ provider.Embedder = (*Embedder)(nil)

// NewEmbedder creates a new OpenAI embedder. Returns an error if the API key
// is missing or the dimension count is negative. Unlike generation, embed
// calls run outside the resilience wrapper, so the SDK's built-in retries
// stay enabled.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"openai: missing api_key in config",
			tserr.FieldProvider("openai"))
	}
	if cfg.Dimensions < 0 {
		return nil, tserr.New(tserr.CodeProviderRequestInvalid,
			"openai: embedding dimensions must be positive",
			tserr.FieldProvider("openai"))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = DefaultEmbeddingDimensions
	}

	client := openaisdk.NewClient(clientOptions(Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		RequestTimeout: cfg.RequestTimeout,
	})...)
	return &Embedder{client: client, model: model, dimensions: dims}, nil
}

func (e *Embedder) Name() string { return "openai" }

// Dimensions reports the vector width Embed produces.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed returns one embedding per input text, in input order. An empty input
// returns an empty result without a vendor call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, tserr.New(tserr.CodeProviderRequestInvalid,
				"openai: empty text in embedding batch",
				tserr.FieldProvider("openai"),
				tserr.Field("index", i))
		}
	}

	res, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions:     param.NewOpt(int64(e.dimensions)),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("openai", e.model, "error").Inc()
		return nil, describeErr(err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("openai", e.model, "success").Inc()
	metrics.LLMTokensTotal.WithLabelValues("openai", "input").Add(float64(res.Usage.PromptTokens))

	if len(res.Data) != len(texts) {
		return nil, tserr.New(tserr.CodeProviderResponseInvalid,
			"openai: embedding count does not match input count",
			tserr.FieldProvider("openai"),
			tserr.Field("got", len(res.Data)),
			tserr.Field("want", len(texts)))
	}

	// The API reports an index per datum; trust it rather than the slice
	// order.
	out := make([][]float32, len(texts))
	for _, datum := range res.Data {
		idx := int(datum.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			return nil, tserr.New(tserr.CodeProviderResponseInvalid,
				"openai: embedding response indexes are corrupt",
				tserr.FieldProvider("openai"))
		}
		vec := make([]float32, len(datum.Embedding))
		for i, v := range datum.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

// describeErr classifies an SDK error into the provider taxonomy. Vendor 4xx
// responses (except rate limits) mark the request itself as invalid; rate
// limits, 5xx and transport failures are upstream failures the caller may
// retry. Context errors pass through untouched.
func describeErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *openaisdk.Error
	if errors.As(err, &apierr) &&
		apierr.StatusCode >= 400 && apierr.StatusCode < 500 && apierr.StatusCode != 429 {
		return tserr.Wrap(err, tserr.CodeProviderRequestInvalid,
			"openai rejected the request",
			tserr.FieldProvider("openai"))
	}

	return tserr.Wrap(err, tserr.CodeProviderUpstreamFailure,
		"openai request failed",
		tserr.FieldProvider("openai"))
}
