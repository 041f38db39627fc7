package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/bankops/mfkb/internal/log"
)

// OpenAIConfig carries what the client needs to talk to an
// OpenAI-compatible endpoint. BaseURL covers Azure and self-hosted
// gateways.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	Dimensions int
}

// OpenAIProvider implements Provider on the official SDK.
type OpenAIProvider struct {
	client     openai.Client
	dimensions int
	logger     log.Logger
}

// NewOpenAI creates a provider for the configured endpoint.
func NewOpenAI(cfg OpenAIConfig, logger log.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OrgID != "" {
		opts = append(opts, option.WithOrganization(cfg.OrgID))
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		dimensions: cfg.Dimensions,
		logger:     logger,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// CreateEmbeddings implements Provider.
func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, texts []string, model string) (*Result, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, &ProviderError{
				Provider: p.Name(),
				Err:      fmt.Errorf("embedding index %d out of range", d.Index),
			}
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}

	p.logger.Debug("embeddings created",
		"model", model,
		"texts", len(texts),
		"prompt_tokens", resp.Usage.PromptTokens,
		"total_tokens", resp.Usage.TotalTokens,
	)

	return &Result{
		Vectors:      vectors,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// wrapError converts SDK errors into ProviderError so callers can classify
// them without importing the SDK.
func (p *OpenAIProvider) wrapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &ProviderError{Provider: p.Name(), Status: apierr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: p.Name(), Err: err}
}
