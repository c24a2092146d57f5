package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-openclaw-autoapply/internal/config"
)

// ErrUnavailable marks any failure to obtain a usable answer from the model.
var ErrUnavailable = errors.New("advisory model unavailable")

// Completer is the interface for LLM providers
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewCompleter builds the provider named in cfg. It returns nil, nil for
// provider "none" or a missing key so callers can fall back to the
// deterministic risk band.
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	if cfg.Provider == "none" || cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "groq":
		return NewGroqClient(cfg.APIKey, cfg.Model, WithBaseURL(cfg.BaseURL), WithTimeout(cfg.Timeout)), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// cleanMarkdownJSON removes backticks and "json" prefix if the AI model tries to be helpful
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	content = strings.TrimSpace(content)

	// some models add a sentence before the object
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start > 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
