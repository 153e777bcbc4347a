package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// normalizeInput replaces newlines with spaces. The embedding backend treats
// newlines as significant, which skews vectors for multi-line text.
func normalizeInput(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}

func (c *Client) resolveEmbeddingModel(model string) string {
	if model == "" {
		return c.embeddingModel
	}
	return model
}

// GetEmbedding returns the embedding vector for a single text, retrying
// rate-limit failures with backoff. An empty model selects the configured
// default. Blocks the calling goroutine during backoff waits.
func (c *Client) GetEmbedding(text, model string) ([]float32, error) {
	resp, err := c.CreateEmbedding(openai.EmbeddingRequest{
		Input: []string{normalizeInput(text)},
		Model: openai.EmbeddingModel(c.resolveEmbeddingModel(model)),
	})
	if err != nil {
		return nil, err
	}
	return firstEmbedding(resp)
}

// GetEmbeddingContext is the context-aware form of GetEmbedding.
func (c *Client) GetEmbeddingContext(ctx context.Context, text, model string) ([]float32, error) {
	resp, err := c.CreateEmbeddingContext(ctx, openai.EmbeddingRequest{
		Input: []string{normalizeInput(text)},
		Model: openai.EmbeddingModel(c.resolveEmbeddingModel(model)),
	})
	if err != nil {
		return nil, err
	}
	return firstEmbedding(resp)
}

func firstEmbedding(resp openai.EmbeddingResponse) ([]float32, error) {
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// GetMultipleEmbeddings fetches embeddings for parallel slices of texts and
// models concurrently, one request per (text, model) pair. Each request
// retries independently; results are returned in input order regardless of
// completion order. Any failure, after its own retries are exhausted, fails
// the whole batch.
func (c *Client) GetMultipleEmbeddings(ctx context.Context, texts, models []string) ([][]float32, error) {
	if len(texts) != len(models) {
		return nil, fmt.Errorf("got %d texts and %d models, lengths must match", len(texts), len(models))
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	for i := range texts {
		i := i
		g.Go(func() error {
			vec, err := c.GetEmbeddingContext(ctx, texts[i], models[i])
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
