package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiClient struct {
	llm llms.Model
}

// NewGeminiClient initializes a Gemini model through langchaingo.
func NewGeminiClient(ctx context.Context, apiKey, model string) (Completer, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{llm: llm}, nil
}

// NewModelCompleter adapts any langchaingo model.
func NewModelCompleter(llm llms.Model) Completer {
	return &geminiClient{llm: llm}
}

func (c *geminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, c.llm, system+"\n\n"+user,
		llms.WithTemperature(0.1),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", ErrUnavailable, err)
	}
	return resp, nil
}
