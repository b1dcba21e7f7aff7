// Package embedding implements the remote embedding client: batch
// partitioning, retry with exponential backoff, and response shape
// validation against the configured vector dimension.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"paperqa/internal/domain"
	"paperqa/internal/retry"
)

// embeddingAPI is the single remote capability the client depends on.
// *openai.Client satisfies it; tests substitute a fake.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config configures the embedding client for an OpenAI-compatible provider
// (dashscope compatible-mode by default).
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	Retry      retry.Policy
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-v4"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1024
	}
	if c.BatchSize == 0 {
		c.BatchSize = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultPolicy()
	}
}

// Client embeds text batches through a remote API.
type Client struct {
	api        embeddingAPI
	model      string
	dimensions int
	batchSize  int
	policy     retry.Policy
	sleep      retry.SleepFunc
	logger     *slog.Logger
}

// NewClient creates an embedding client backed by the configured provider.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is empty", domain.ErrInvalidConfig)
	}
	if cfg.BatchSize < 0 || cfg.Dimensions < 0 {
		return nil, fmt.Errorf("%w: negative batch size or dimensions", domain.ErrInvalidConfig)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient.Timeout = cfg.Timeout

	return &Client{
		api:        openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		policy:     cfg.Retry,
		sleep:      retry.Sleep,
		logger:     slog.Default(),
	}, nil
}

// Dimensions returns the configured vector dimension.
func (c *Client) Dimensions() int { return c.dimensions }

// EmbedBatch embeds all texts, issuing one API call per batch of at most the
// configured batch size. Output order equals input order and is 1:1 with it.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", domain.ErrInvalidInput)
	}

	total := (len(texts) + c.batchSize - 1) / c.batchSize
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := i / c.batchSize
		vecs, err := c.embedOnce(ctx, texts[i:end], batch, total)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

// embedOnce sends a single batch, retrying transient failures per the policy.
func (c *Client) embedOnce(ctx context.Context, batch []string, batchNum, totalBatches int) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          batch,
		Model:          openai.EmbeddingModel(c.model),
		Dimensions:     c.dimensions,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err == nil {
			vecs, shapeErr := c.extract(resp, len(batch))
			if shapeErr != nil {
				return nil, fmt.Errorf("batch %d/%d: %w", batchNum+1, totalBatches, shapeErr)
			}
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch retry.Classify(err) {
		case retry.ClassAuth:
			return nil, fmt.Errorf("batch %d/%d: %w: %v", batchNum+1, totalBatches, domain.ErrEmbeddingAuth, err)
		case retry.ClassRequest:
			return nil, fmt.Errorf("batch %d/%d: %w: %v", batchNum+1, totalBatches, domain.ErrEmbeddingRequest, err)
		}

		lastErr = err
		if attempt < c.policy.MaxAttempts-1 {
			delay := c.policy.Backoff(attempt)
			c.logger.Warn("embedding call failed, retrying",
				"batch", batchNum+1, "of", totalBatches, "attempt", attempt+1, "delay", delay, "err", err)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("batch %d/%d: %w after %d attempts: %v",
		batchNum+1, totalBatches, domain.ErrEmbeddingUnavailable, c.policy.MaxAttempts, lastErr)
}

// extract validates the response shape and returns vectors in input order.
func (c *Client) extract(resp openai.EmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", domain.ErrEmbeddingShape, len(resp.Data), want)
	}
	vectors := make([][]float32, want)
	for i, data := range resp.Data {
		pos := data.Index
		if pos < 0 || pos >= want || vectors[pos] != nil {
			return nil, fmt.Errorf("%w: bad result position %d", domain.ErrEmbeddingShape, pos)
		}
		if len(data.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				domain.ErrEmbeddingShape, i, len(data.Embedding), c.dimensions)
		}
		vectors[pos] = data.Embedding
	}
	return vectors, nil
}
