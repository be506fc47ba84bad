// Package genai talks to the text-generation endpoint through its
// OpenAI-compatible chat completions API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// RequestTimeout bounds a single generation call.
const RequestTimeout = 60 * time.Second

// Sampling parameters sent with every request.
const (
	temperature = 0.2
	topP        = 0.95
	maxTokens   = 8192
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("generation endpoint is not configured")

// ErrEmptyResponse is returned when the endpoint answers without text.
var ErrEmptyResponse = errors.New("generation response did not contain text output")

// Generator produces text for a prompt. Output carries no schema guarantee.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client is a Generator backed by go-openai.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient returns a Client, or ErrNotConfigured without an API key.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(baseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: RequestTimeout}

	logger.Info("Initializing generation client", zap.String("model", model), zap.String("base_url", oc.BaseURL))
	return &Client{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         temperature,
		TopP:                topP,
		MaxCompletionTokens: maxTokens,
	}

	c.logger.Debug("Sending generation request", zap.String("model", c.model), zap.Int("prompt_length", len(prompt)))
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}

	var parts []string
	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.Join(parts, "\n")
	c.logger.Info("Generation response received",
		zap.String("model", c.model),
		zap.Int("response_length", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
