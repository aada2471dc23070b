package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// mockLLM is a mock implementation of llms.Model for testing
type mockLLM struct {
	response string
	err      error
	prompts  []string
	jsonMode bool
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.jsonMode = opts.JSONMode
	m.prompts = append(m.prompts, messages[0].Parts[0].(llms.TextContent).Text)
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var _ research.Completer = (*LLMCompleter)(nil)

func TestLLMCompleter(t *testing.T) {
	model := &mockLLM{response: `["q1"]`}
	c := NewCompleter(model, llms.WithJSONMode())

	got, err := c.Complete(context.Background(), "plan this")
	require.NoError(t, err)
	assert.Equal(t, `["q1"]`, got)
	assert.Equal(t, []string{"plan this"}, model.prompts)
	assert.True(t, model.jsonMode)
}

func TestLLMCompleterError(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := NewCompleter(&mockLLM{err: boom})

	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.Config{LLMProvider: "parrot"}, "m")
	assert.ErrorContains(t, err, "unknown LLM provider")
}

func TestNewRequiresKey(t *testing.T) {
	for _, provider := range []string{"google", "openai", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), &config.Config{LLMProvider: provider}, "")
			assert.ErrorContains(t, err, "API_KEY is not set")
		})
	}
}
