package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// httpBackend is the JSON-over-HTTP plumbing shared by OpenAI and Remote.
type httpBackend struct {
	provider string
	baseURL  string
	config   *HTTPConfig
	http     *http.Client
	logger   *slog.Logger
}

func newHTTPBackend(provider string, cfg *HTTPConfig) *httpBackend {
	return &httpBackend{
		provider: provider,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		config:   cfg,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger.With("component", "reply."+provider),
	}
}

// post marshals payload, retries retryable failures, and decodes into out.
func (b *httpBackend) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(b.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.RetryDelay * time.Duration(attempt)):
			}
		}

		lastErr = b.do(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
		var apiErr *APIError
		if !errors.As(lastErr, &apiErr) || !apiErr.IsRetryable() {
			return lastErr
		}
		b.logger.Warn("request failed, retrying",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}
	return lastErr
}

func (b *httpBackend) do(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return WrapError(b.provider, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return WrapError(b.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseAPIError(b.provider, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(b.provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseAPIError reads an error body in the OpenAI {"error":{"message"}}
// shape, falling back to the raw text.
func parseAPIError(provider string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, Provider: provider}
}

// Close releases idle connections.
func (b *httpBackend) Close() error {
	b.http.CloseIdleConnections()
	return nil
}
