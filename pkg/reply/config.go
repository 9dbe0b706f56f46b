package reply

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sptcnl/momo/internal/httpc"
	"github.com/sptcnl/momo/internal/log"
)

// DefaultSystemPrompt sets the persona for chat-style models.
const DefaultSystemPrompt = "너는 주인과 대화하는 친구 로봇 강아지 모모야. 상황 태그를 참고해서 한두 문장으로 짧고 다정하게 대답해."

// HTTPConfig holds configuration for the HTTP backends (OpenAI and Remote).
// Use functional options (WithXxx) to set these values.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	SystemPrompt string
	MaxTokens    int
	Temperature  float64

	// MaxRunes caps the reply length. Zero means no cap.
	MaxRunes int

	// MaxRetries is extra attempts after a retryable failure. The default
	// is zero: one request per call.
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for the HTTP backends.
type Option func(*HTTPConfig)

// WithBaseURL sets the server URL.
func WithBaseURL(url string) Option {
	return func(c *HTTPConfig) {
		c.BaseURL = url
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *HTTPConfig) {
		c.APIKey = key
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *HTTPConfig) {
		c.Model = model
	}
}

// WithSystemPrompt overrides the persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *HTTPConfig) {
		c.SystemPrompt = prompt
	}
}

// WithMaxTokens sets the completion length.
func WithMaxTokens(n int) Option {
	return func(c *HTTPConfig) {
		c.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *HTTPConfig) {
		c.Temperature = t
	}
}

// WithMaxRunes caps reply length.
func WithMaxRunes(n int) Option {
	return func(c *HTTPConfig) {
		c.MaxRunes = n
	}
}

// WithRetry configures retry behaviour for retryable API errors.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *HTTPConfig) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPConfig) {
		c.HTTPClient = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// DefaultHTTPConfig targets a local Ollama server.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		BaseURL:      "http://localhost:11434/v1",
		Model:        "qwen2.5:0.5b",
		SystemPrompt: DefaultSystemPrompt,
		MaxTokens:    60,
		Temperature:  0.7,
		MaxRunes:     80,
		MaxRetries:   0,
		RetryDelay:   200 * time.Millisecond,
		HTTPClient:   httpc.NewClient(20 * time.Second),
		Logger:       log.L(),
	}
}

// Apply applies functional options to the config.
func (c *HTTPConfig) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
