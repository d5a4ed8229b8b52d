package retry

import (
	"context"

	"github.com/c360studio/genguard/llm"
)

// Extractor pulls the artifact out of a raw model response.
type Extractor func(string) string

// FromGenerator adapts an llm.Generator. Accumulated feedback is appended to
// the system instructions so constraints build up across attempts, and
// extract is applied to each response (llm.ExtractCode when nil).
func FromGenerator(gen llm.Generator, req llm.Request, extract Extractor) GenerateFunc {
	if extract == nil {
		extract = llm.ExtractCode
	}
	return func(ctx context.Context, feedback string) (string, error) {
		r := req
		if feedback != "" {
			r.System = appendFeedback(req.System, feedback)
		}
		text, err := gen.Generate(ctx, r)
		if err != nil {
			return "", err
		}
		return extract(text), nil
	}
}
