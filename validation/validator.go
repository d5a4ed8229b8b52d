package validation

import "context"

// Validator checks one artifact. Implementations must be deterministic and
// safe for concurrent use; ctx is only consulted by parsers that honor it.
type Validator interface {
	Validate(ctx context.Context, artifact string) *Result
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, artifact string) *Result

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, artifact string) *Result {
	return f(ctx, artifact)
}
