package backoff

import (
	"errors"
	"fmt"
)

// RetryableError marks an error as safe to retry. The retry loop only backs
// off for errors carrying this marker; everything else propagates unchanged.
type RetryableError struct {
	err error
}

func (e *RetryableError) Error() string {
	return e.err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.err
}

// MarkRetryable wraps an error so the retry loop will back off and retry it.
// A nil error is returned as nil.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{err: err}
}

// IsRetryable reports whether err carries the retryable marker anywhere in
// its chain.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// RetriesExhaustedError is returned when a call keeps failing with retryable
// errors past the configured retry bound.
type RetriesExhaustedError struct {
	// MaxRetries is the retry bound that was exceeded.
	MaxRetries int

	// Last is the retryable error from the final attempt.
	Last error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("maximum number of retries (%d) exceeded", e.MaxRetries)
	}
	return fmt.Sprintf("maximum number of retries (%d) exceeded: %v", e.MaxRetries, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// AsRetriesExhausted extracts a RetriesExhaustedError from err's chain.
func AsRetriesExhausted(err error) (*RetriesExhaustedError, bool) {
	var exhausted *RetriesExhaustedError
	ok := errors.As(err, &exhausted)
	return exhausted, ok
}
