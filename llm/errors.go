package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable marks failures where the backend cannot be reached or
// refuses service. Retrying does not help.
var ErrUnavailable = errors.New("generation backend unavailable")

// Error types for classifying generator errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// unavailable wraps a connectivity failure.
func unavailable(format string, args ...any) error {
	return NewFatalError(fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...)))
}

// classifyStatus maps an HTTP status to a classified error.
// Rate limiting is the only transient status; server errors mean the
// backend is unavailable.
func classifyStatus(statusCode int, body string) error {
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	err := fmt.Errorf("generation API error (status %d): %s", statusCode, body)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewFatalError(fmt.Errorf("%w: %w", ErrUnavailable, err))
	default:
		return NewFatalError(err)
	}
}
