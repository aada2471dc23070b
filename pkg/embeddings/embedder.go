package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mikeboe/deep-research/pkg/config"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder adapts the langchaingo OpenAI embedder.
type OpenAIEmbedder struct {
	impl *lcembeddings.EmbedderImpl
}

// NewOpenAIEmbedder builds an embedder for the OpenAI embeddings endpoint.
// baseURL may be empty.
func NewOpenAIEmbedder(apiKey, model, baseURL string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	impl, err := lcembeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI embedder: %w", err)
	}
	return &OpenAIEmbedder{impl: impl}, nil
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	return vecs, nil
}

// New picks the embedder matching the configured LLM provider. Anthropic has
// no embeddings API, so it falls back to Gemini.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	if cfg.LLMProvider == "openai" {
		model := cfg.EmbeddingModel
		if model == "" || model == "gemini-embedding-001" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(cfg.OpenAIApiKey, model, "")
	}
	return NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDimensions)
}
