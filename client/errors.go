package client

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/sashabaranov/go-openai"

	"github.com/c360studio/openaitools/backoff"
)

// classifyError marks rate-limit and transient upstream failures as
// retryable. Everything else is returned unchanged so callers see the
// original error type and message.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return backoff.MarkRetryable(err)
		case apiErr.HTTPStatusCode >= 500:
			// Server errors are transient
			return backoff.MarkRetryable(err)
		default:
			// Auth failures, bad requests and the rest are fatal
			return err
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return backoff.MarkRetryable(err)
		case reqErr.HTTPStatusCode >= 500:
			return backoff.MarkRetryable(err)
		default:
			return err
		}
	}

	// Transport-level failures never reached the backend.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return backoff.MarkRetryable(err)
	}

	return err
}
