// Package llm is a minimal chat-completions client for OpenRouter-compatible endpoints.
// Every response is untrusted text; callers parse it with ExtractJSON.
package llm

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

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.5-flash"
	defaultTimeout = 8 * time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Completer sends one system instruction and one user message and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	HTTPClient  *http.Client
}

// Client handles communication with the chat-completions API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	timeout     time.Duration
	temperature float64
	httpClient  *http.Client
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents the API request structure.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// Response represents the API response structure.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// NewClient creates a new client. Empty fields take defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		httpClient:  cfg.HTTPClient,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a single non-streaming completion request.
// Failures are returned as domain.UpstreamUnavailable wrapping one of the package errors.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", domain.UpstreamUnavailable("llm not configured", ErrDisabled)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(system, user))
	if err != nil {
		return "", domain.UpstreamUnavailable("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.UpstreamUnavailable("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "Sales Engine")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.UpstreamUnavailable("request timed out", fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return "", domain.UpstreamUnavailable("failed to send request", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", domain.UpstreamUnavailable("failed to read response", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", domain.UpstreamUnavailable(
			fmt.Sprintf("API returned status %d", resp.StatusCode),
			fmt.Errorf("%w: %s", statusError(resp.StatusCode), truncate(string(data), 200)))
	}

	var parsed Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", domain.UpstreamUnavailable("failed to decode response", fmt.Errorf("%w: %v", ErrInvalidOutput, err))
	}
	if parsed.Error != nil {
		return "", domain.UpstreamUnavailable("API returned an error", fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", domain.UpstreamUnavailable("empty completion", ErrInvalidOutput)
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) buildRequest(system, user string) *Request {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: user})

	return &Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
}

// statusError maps transient HTTP statuses to ErrUnavailable and the rest to ErrInvalidOutput.
func statusError(code int) error {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrUnavailable
	case http.StatusRequestTimeout:
		return ErrTimeout
	default:
		return ErrInvalidOutput
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
