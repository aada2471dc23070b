package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

// LLMCompleter adapts a langchaingo model to research.Completer.
type LLMCompleter struct {
	Model   llms.Model
	Options []llms.CallOption
}

func NewCompleter(model llms.Model, opts ...llms.CallOption) *LLMCompleter {
	return &LLMCompleter{Model: model, Options: opts}
}

func (c *LLMCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, c.Model, prompt, c.Options...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return resp, nil
}

// New builds the configured provider's model.
func New(ctx context.Context, cfg *config.Config, model string) (llms.Model, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.LLMProvider {
	case "google", "gemini", "":
		llm, err = GoogleAi(ctx, cfg.GoogleApiKey, ModelType(model))
	case "openai":
		llm, err = OpenAI(cfg.OpenAIApiKey, ModelType(model))
	case "anthropic":
		llm, err = AnthropicAI(cfg.AnthropicApiKey, ModelType(model))
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return llm, nil
}

// Completers returns the reasoning completer used for planning, critique and
// writing, and the fast completer used for note summaries.
func Completers(ctx context.Context, cfg *config.Config) (reasoning, fast *LLMCompleter, err error) {
	reasoningModel, err := New(ctx, cfg, cfg.ReasoningModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init reasoning model: %w", err)
	}
	fastModel, err := New(ctx, cfg, cfg.FastModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init fast model: %w", err)
	}
	return NewCompleter(reasoningModel), NewCompleter(fastModel), nil
}
