// Package client wraps an OpenAI-compatible API client with exponential
// backoff for rate-limited requests. Chat completion and embedding calls come
// in a blocking form, which sleeps on the calling goroutine between retries,
// and a context-aware form whose waits are cancellable and safe to fan out
// across goroutines.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/c360studio/openaitools/backoff"
	"github.com/c360studio/openaitools/config"
)

// Client wraps the upstream API client with retry and backoff support.
type Client struct {
	api            *openai.Client
	policy         backoff.Policy
	logger         *slog.Logger
	httpClient     *http.Client
	embeddingModel string
	backendType    string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPolicy overrides the backoff policy derived from the configuration.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithHTTPClient sets a custom HTTP client for the underlying API client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// New creates a Client from the given configuration. The configuration is
// read once here; changing it afterwards has no effect on the client.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		policy: backoff.Policy{
			InitialDelay:    cfg.Retry.InitialDelay,
			ExponentialBase: cfg.Retry.ExponentialBase,
			Jitter:          cfg.Retry.Jitter,
			MaxRetries:      cfg.Retry.MaxRetries,
		},
		logger:         slog.Default(),
		embeddingModel: cfg.API.EmbeddingModel,
		backendType:    cfg.API.BackendType,
	}

	for _, opt := range opts {
		opt(c)
	}

	apiCfg := openai.DefaultConfig(cfg.API.Key)
	if cfg.API.Base != "" {
		apiCfg.BaseURL = cfg.API.Base
	}
	if c.httpClient != nil {
		apiCfg.HTTPClient = c.httpClient
	} else if cfg.API.Timeout > 0 {
		apiCfg.HTTPClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	c.api = openai.NewClientWithConfig(apiCfg)

	if c.backendType != "" {
		c.logger.Debug("Using alternate backend",
			"backend_type", c.backendType,
			"api_base", cfg.API.Base)
	}

	return c, nil
}

// callPolicy returns a copy of the client policy wired to log each backoff
// wait under a per-call request ID.
func (c *Client) callPolicy(operation, model string) backoff.Policy {
	p := c.policy
	logger := c.logger.With(
		"request_id", uuid.New().String(),
		"operation", operation,
		"model", model)

	p.OnRetry = func(err error, retries int, delay time.Duration) {
		logger.Debug("Rate limited, backing off",
			"retries", retries,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", err)
	}
	return p
}

// logExhausted records a retry-exhaustion failure for diagnostics.
func (c *Client) logExhausted(operation string, err error) {
	if _, ok := backoff.AsRetriesExhausted(err); ok {
		c.logger.Warn("Retries exhausted", "operation", operation, "error", err)
	}
}

// CreateChatCompletion sends a chat completion request, retrying rate-limit
// failures with backoff. The raw response is returned unmodified. Blocks the
// calling goroutine during backoff waits.
func (c *Client) CreateChatCompletion(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := backoff.DoValue(c.callPolicy("chat.completions", req.Model), func() (openai.ChatCompletionResponse, error) {
		resp, err := c.api.CreateChatCompletion(context.Background(), req)
		return resp, classifyError(err)
	})
	c.logExhausted("chat.completions", err)
	return resp, err
}

// CreateChatCompletionContext is the context-aware form of
// CreateChatCompletion. Cancelling ctx interrupts both in-flight requests and
// backoff waits.
func (c *Client) CreateChatCompletionContext(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := backoff.DoValueContext(ctx, c.callPolicy("chat.completions", req.Model), func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		return resp, classifyError(err)
	})
	c.logExhausted("chat.completions", err)
	return resp, err
}

// CreateEmbedding sends an embedding request, retrying rate-limit failures
// with backoff. The raw response is returned unmodified.
func (c *Client) CreateEmbedding(req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	resp, err := backoff.DoValue(c.callPolicy("embeddings", string(req.Model)), func() (openai.EmbeddingResponse, error) {
		resp, err := c.api.CreateEmbeddings(context.Background(), req)
		return resp, classifyError(err)
	})
	c.logExhausted("embeddings", err)
	return resp, err
}

// CreateEmbeddingContext is the context-aware form of CreateEmbedding.
func (c *Client) CreateEmbeddingContext(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	resp, err := backoff.DoValueContext(ctx, c.callPolicy("embeddings", string(req.Model)), func(ctx context.Context) (openai.EmbeddingResponse, error) {
		resp, err := c.api.CreateEmbeddings(ctx, req)
		return resp, classifyError(err)
	})
	c.logExhausted("embeddings", err)
	return resp, err
}
