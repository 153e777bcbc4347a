package client_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/openaitools/backoff"
	"github.com/c360studio/openaitools/client"
	"github.com/c360studio/openaitools/client/testutil"
	"github.com/c360studio/openaitools/config"
)

// newTestClient points a client at the mock server with fast deterministic
// retries.
func newTestClient(t *testing.T, srv *testutil.Server, maxRetries int) *client.Client {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.API.Base = srv.BaseURL()
	cfg.API.Key = "sk-test"
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.Jitter = false
	cfg.Retry.MaxRetries = maxRetries

	c, err := client.New(cfg)
	require.NoError(t, err)
	return c
}

func chatRequest() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: "test-model",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hello"},
		},
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig() // No key, no base override
	_, err := client.New(cfg)
	require.Error(t, err)
}

func TestCreateChatCompletion_Success(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.SetCompletion("Hello! How can I help you?")

	c := newTestClient(t, srv, 3)

	resp, err := c.CreateChatCompletion(chatRequest())
	require.NoError(t, err)

	// The raw response comes back unmodified, envelope included.
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello! How can I help you?", resp.Choices[0].Message.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, "stop", string(resp.Choices[0].FinishReason))
	assert.NotZero(t, resp.Usage.TotalTokens)
	assert.Equal(t, 1, srv.Calls(testutil.ChatPath))
}

func TestCreateChatCompletion_RetriesRateLimit(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.SetCompletion("eventually")
	srv.FailTimes(testutil.ChatPath, http.StatusTooManyRequests, 2)

	c := newTestClient(t, srv, 5)

	resp, err := c.CreateChatCompletion(chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Choices[0].Message.Content)
	assert.Equal(t, 3, srv.Calls(testutil.ChatPath))

	// Every attempt re-sends the original request verbatim.
	for _, msgs := range srv.ChatMessages() {
		assert.Equal(t, []string{"Hello"}, msgs)
	}
}

func TestCreateChatCompletion_RetriesExhausted(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.FailTimes(testutil.ChatPath, http.StatusTooManyRequests, 10)

	c := newTestClient(t, srv, 2)

	_, err := c.CreateChatCompletion(chatRequest())
	require.Error(t, err)

	exhausted, ok := backoff.AsRetriesExhausted(err)
	require.True(t, ok, "expected RetriesExhaustedError, got %v", err)
	assert.Equal(t, 2, exhausted.MaxRetries)
	assert.Equal(t, 3, srv.Calls(testutil.ChatPath), "max_retries+1 attempts")

	// The rate-limit error from the last attempt stays reachable.
	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}

func TestCreateChatCompletion_NonRetryableNotRetried(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.FailTimes(testutil.ChatPath, http.StatusUnauthorized, 1)

	c := newTestClient(t, srv, 5)

	start := time.Now()
	_, err := c.CreateChatCompletion(chatRequest())
	require.Error(t, err)

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr), "original error type must survive")
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
	assert.Equal(t, 1, srv.Calls(testutil.ChatPath))
	assert.Less(t, time.Since(start), time.Second, "no backoff for fatal errors")
}

func TestCreateChatCompletionContext_CancelDuringBackoff(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.FailTimes(testutil.ChatPath, http.StatusTooManyRequests, 100)

	cfg := config.DefaultConfig()
	cfg.API.Base = srv.BaseURL()
	cfg.API.Key = "sk-test"
	cfg.Retry.InitialDelay = 10 * time.Second
	cfg.Retry.Jitter = false
	cfg.Retry.MaxRetries = 5

	c, err := client.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = c.CreateChatCompletionContext(ctx, chatRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must interrupt the wait")
}

func TestCreateEmbedding_RawResponse(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.SetDefaultEmbedding([]float32{0.5, 0.6})

	c := newTestClient(t, srv, 3)

	resp, err := c.CreateEmbedding(openai.EmbeddingRequest{
		Input: []string{"alpha", "beta"},
		Model: "text-embedding-ada-002",
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, []float32{0.5, 0.6}, resp.Data[0].Embedding)
	assert.Equal(t, 1, resp.Data[1].Index)
}
