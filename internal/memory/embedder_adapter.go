package memory

import (
	"context"
	"fmt"

	"github.com/clocktower/storytellerdm/internal/memory/embeddings/openai"
)

// OpenAIEmbedder adapts the OpenAI embeddings provider to
// storyteller.Embedder, the narrower single-text contract the Memory
// Manager needs.
type OpenAIEmbedder struct {
	provider *openai.Provider
}

// NewOpenAIEmbedder constructs an embedder for the given model against an
// OpenAI-compatible embeddings endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	p, err := openai.New(openai.Config{APIKey: apiKey, BaseURL: baseURL, Model: model})
	if err != nil {
		return nil, fmt.Errorf("memory: construct embedder: %w", err)
	}
	return &OpenAIEmbedder{provider: p}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.provider.Embed(ctx, text)
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.provider.Dimension()
}
