package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	groqURL          = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModel = "llama-3.3-70b-versatile"
)

type groqClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type GroqOption func(*groqClient)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(url string) GroqOption {
	return func(c *groqClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithTimeout(d time.Duration) GroqOption {
	return func(c *groqClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewGroqClient creates a Groq chat-completions client
func NewGroqClient(apiKey, model string, opts ...GroqOption) Completer {
	if model == "" {
		model = defaultGroqModel
	}
	c := &groqClient{
		apiKey:     apiKey,
		model:      model,
		url:        groqURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponseFormat struct {
	Type string `json:"type"`
}

type groqRequest struct {
	Model          string              `json:"model"`
	Messages       []groqMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *groqResponseFormat `json:"response_format,omitempty"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system + user message pair and returns the raw reply.
func (c *groqClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := groqRequest{
		Model: c.model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.1,
		MaxTokens:      300,
		ResponseFormat: &groqResponseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal groq request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: http request failed: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		// body may echo the prompt; keep only the status
		return "", fmt.Errorf("%w: groq API returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var groqResp groqResponse
	if err := json.Unmarshal(bodyBytes, &groqResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	if groqResp.Error != nil {
		return "", fmt.Errorf("%w: API error: %s", ErrUnavailable, groqResp.Error.Message)
	}
	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned from groq API", ErrUnavailable)
	}

	return groqResp.Choices[0].Message.Content, nil
}
