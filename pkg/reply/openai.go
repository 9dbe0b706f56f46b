package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const providerOpenAI = "openai"

// OpenAI talks to any OpenAI-compatible chat completions server (Ollama,
// llama.cpp server, vLLM, OpenAI itself).
type OpenAI struct {
	*httpBackend
}

// NewOpenAI creates a chat completions client.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultHTTPConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, WrapError(providerOpenAI, errors.New("base URL required"))
	}
	if cfg.Model == "" {
		return nil, WrapError(providerOpenAI, errors.New("model required"))
	}

	return &OpenAI{newHTTPBackend(providerOpenAI, cfg)}, nil
}

// Name returns "openai".
func (c *OpenAI) Name() string { return providerOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Reply sends the situation tag and transcript as one user message.
func (c *OpenAI) Reply(ctx context.Context, req Request) (string, error) {
	if req.Transcript == "" {
		return "", WrapError(providerOpenAI, ErrEmptyTranscript)
	}
	start := time.Now()

	payload := chatCompletionRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.config.SystemPrompt},
			{Role: "user", Content: req.Context() + " " + req.Transcript},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	var result chatCompletionResponse
	if err := c.post(ctx, "/chat/completions", payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", WrapError(providerOpenAI, fmt.Errorf("no choices returned"))
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", WrapError(providerOpenAI, ErrEmptyReply)
	}
	if c.config.MaxRunes > 0 {
		text = Truncate(text, c.config.MaxRunes)
	}

	c.logger.Debug("completion",
		"model", result.Model,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var _ Generator = (*OpenAI)(nil)
