// Package llm adapts generative text backends to a single Generator
// interface and classifies their failures.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("empty response from generation backend")

// Request is one generation call.
type Request struct {
	// System carries the standing instructions, including accumulated feedback.
	System string

	// User is the task prompt.
	User string

	// Temperature controls randomness. nil uses the backend default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the backend default.
	MaxTokens int
}

// Generator produces text for a request. Errors should be classified with
// NewTransientError or NewFatalError; unclassified errors are treated as fatal.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
