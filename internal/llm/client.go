// Package llm wraps the remote chat-completion API used to answer questions
// over retrieved context.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"paperqa/internal/domain"
	"paperqa/internal/retry"
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the completion client for an OpenAI-compatible provider.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if c.Model == "" {
		c.Model = "qwen-plus"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultPolicy()
	}
}

// Client generates completions with the same transient/non-transient retry
// split as the embedding client.
type Client struct {
	api         chatAPI
	model       string
	temperature float32
	maxTokens   int
	policy      retry.Policy
	sleep       retry.SleepFunc
	logger      *slog.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: completion API key is empty", domain.ErrInvalidConfig)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient.Timeout = cfg.Timeout

	return &Client{
		api:         openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		policy:      cfg.Retry,
		sleep:       retry.Sleep,
		logger:      slog.Default(),
	}, nil
}

// Complete sends a single prompt and returns the generated text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("completion returned no choices")
			}
			return resp.Choices[0].Message.Content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if retry.Classify(err) != retry.ClassTransient {
			return "", fmt.Errorf("completion request failed: %w", err)
		}

		lastErr = err
		if attempt < c.policy.MaxAttempts-1 {
			delay := c.policy.Backoff(attempt)
			c.logger.Warn("completion call failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %v", domain.ErrCompletionUnavailable, c.policy.MaxAttempts, lastErr)
}
