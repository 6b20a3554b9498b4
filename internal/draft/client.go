package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiln/internal/config"
	"kiln/internal/overrides"
	"kiln/internal/services"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultRetryAttempts = 3
	retryBaseDelay       = time.Second
)

// Client asks a hosted model to draft game overrides from a free-form
// description. The result is a sparse Partial; the caller merges and clamps
// it, so model output never bypasses validation.
type Client struct {
	cfg        config.Draft
	httpClient *http.Client
	attempts   int
	sleeper    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryAttempts overrides the retry count.
func WithRetryAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a draft client from the daemon configuration.
func NewClient(cfg config.Draft, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Enabled reports whether draft generation is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Generate drafts overrides for the description. Returns an empty Partial
// when the client is not configured.
func (c *Client) Generate(ctx context.Context, description string) (overrides.Partial, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return overrides.Partial{}, services.Wrap(services.ErrInvalidInput, "draft", "generate", "description required", nil)
	}
	if !c.Enabled() {
		return overrides.Partial{}, nil
	}

	content, err := c.completeWithRetry(ctx, description)
	if err != nil {
		return overrides.Partial{}, err
	}
	var partial overrides.Partial
	if err := decodeModelJSON(content, &partial); err != nil {
		return overrides.Partial{}, services.Wrap(services.ErrTransient, "draft", "generate", "model returned unparseable overrides", err)
	}
	return partial, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) completeWithRetry(ctx context.Context, description string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		content, retryable, err := c.completeOnce(ctx, description)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable || attempt == c.attempts || ctx.Err() != nil {
			return "", err
		}
		if err := c.sleep(ctx, retryBaseDelay*time.Duration(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, description string) (content string, retryable bool, err error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: description},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("draft request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", false, fmt.Errorf("draft request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, services.Wrap(services.ErrTransient, "draft", "generate", "model request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, services.Wrap(services.ErrTransient, "draft", "generate", "model response unreadable", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, services.Wrap(services.ErrRateLimited, "draft", "generate", "model rate limited the request", nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", true, services.Wrap(services.ErrTransient, "draft", "generate",
			fmt.Sprintf("model returned http %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return "", false, services.Wrap(services.ErrInvalidInput, "draft", "generate",
			fmt.Sprintf("model rejected the request with http %d", resp.StatusCode), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false, fmt.Errorf("draft request: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", false, fmt.Errorf("draft request: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", true, errors.New("draft request: empty completion")
	}
	return decoded.Choices[0].Message.Content, false, nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeModelJSON tolerates code fences and prose around the JSON object.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return json.Unmarshal([]byte(trimmed[start:end+1]), target)
		}
	}
	return fmt.Errorf("no JSON object in payload")
}
