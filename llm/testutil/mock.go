// Package testutil provides test utilities for the llm package.
// It includes a scripted generator for exercising retry loops.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/genguard/llm"
)

// Step is one scripted reply: text, or an error when Err is set.
type Step struct {
	Text string
	Err  error
}

// MockGenerator is a thread-safe scripted llm.Generator.
// It captures every request and replays Steps in order; after the script
// runs out it repeats the last step.
//
// Usage:
//
//	// Always the same artifact
//	mock := &MockGenerator{Steps: []Step{{Text: "def f():\n    return 1\n"}}}
//
//	// Bad first, good second
//	mock := &MockGenerator{Steps: []Step{
//	    {Text: "import subprocess\n"},
//	    {Text: "def f():\n    return 1\n"},
//	}}
//
//	// Backend down
//	mock := &MockGenerator{Steps: []Step{{Err: llm.NewFatalError(llm.ErrUnavailable)}}}
type MockGenerator struct {
	mu              sync.Mutex
	Steps           []Step
	requests        []llm.Request
	capturedContext context.Context
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capturedContext = ctx
	m.requests = append(m.requests, req)

	if len(m.Steps) == 0 {
		return "", nil
	}
	i := len(m.requests) - 1
	if i >= len(m.Steps) {
		i = len(m.Steps) - 1
	}
	step := m.Steps[i]
	return step.Text, step.Err
}

// GetCallCount returns the number of times Generate() was called.
func (m *MockGenerator) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the captured requests.
func (m *MockGenerator) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// GetCapturedContext returns the last context passed to Generate().
func (m *MockGenerator) GetCapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}

// Reset clears captured state so the script replays from the start.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.capturedContext = nil
}
