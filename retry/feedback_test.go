package retry_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/validation"
)

func TestFeedback_NumberedContextWindow(t *testing.T) {
	artifact := "a = 1\nb = 2\nimport subprocess\nc = 3\nd = 4\ndef run():\n    return a\n"
	result := codeValidator().Validate(context.Background(), artifact)

	fb := retry.Feedback(artifact, result, 1, retry.CodeConstraints)

	assert.True(t, strings.HasPrefix(fb, "PREVIOUS ATTEMPT FAILED VALIDATION:\n"))
	assert.Contains(t, fb, "Error: Dangerous import: subprocess")
	assert.Contains(t, fb, "Location: line 3")
	assert.Contains(t, fb, "Context:\n2: b = 2\n3: import subprocess\n4: c = 3\n")
	assert.NotContains(t, fb, "1: a = 1")
	assert.NotContains(t, fb, "5: d = 4")
	assert.Contains(t, fb, "CRITICAL FIX REQUIRED:")
	assert.True(t, strings.HasSuffix(fb, "never hardcode them"))
}

func TestFeedback_WindowClampedToText(t *testing.T) {
	artifact := "import subprocess\ndef run():\n    pass"
	result := codeValidator().Validate(context.Background(), artifact)

	fb := retry.Feedback(artifact, result, retry.DefaultContextLines, "")

	assert.Contains(t, fb, "1: import subprocess\n2: def run():\n3:     pass")
	assert.NotContains(t, fb, "0: ")
	assert.NotContains(t, fb, "4: ")
	assert.NotContains(t, fb, "CRITICAL")
}

func TestFeedback_FieldLocationHasNoWindow(t *testing.T) {
	artifact := "name: agent\n"
	result := specValidator().Validate(context.Background(), artifact)

	fb := retry.Feedback(artifact, result, 3, retry.SpecConstraints)

	assert.Contains(t, fb, "Location: ")
	assert.NotContains(t, fb, "Context:")
	assert.Contains(t, fb, "Suggestion: ")
	assert.Contains(t, fb, "Output a single YAML mapping")
}

func TestSpecConstraints_MatchAgentSpecSchema(t *testing.T) {
	for _, f := range validation.AgentSpecSchema().Fields {
		if f.Required {
			assert.Contains(t, retry.SpecConstraints, f.Path)
		}
		for _, v := range f.Enum {
			assert.Contains(t, retry.SpecConstraints, v)
		}
	}

	// A document shaped the way the constraints describe it.
	doc := `agent_name: weather_fetcher
agent_type: data_retrieval
version: 1.0.0
description: Fetches weather data
role: primary_agent
capabilities:
  - name: fetch
workflow:
  steps:
    fetch:
      action: call_api
    store:
      action: write_cache
dependencies:
  python_packages: [pyyaml]
testing:
  test_scenarios:
    - name: happy_path
`
	result := validation.NewAgentSpecValidator().Validate(context.Background(), doc)

	assert.Empty(t, result.Errors())
	assert.True(t, result.Valid())
}

func TestSpecConstraints_StepsListIsRejected(t *testing.T) {
	doc := `agent_name: a
agent_type: calculation
version: 1.0.0
description: d
role: support_agent
capabilities: [add]
workflow:
  steps:
    - name: one
dependencies: {}
`
	result := validation.NewAgentSpecValidator().Validate(context.Background(), doc)

	issue, ok := result.FirstError()
	assert.True(t, ok)
	assert.Equal(t, "workflow.steps", issue.Location.Field)
	fb := retry.Feedback(doc, result, retry.DefaultContextLines, retry.SpecConstraints)
	assert.Contains(t, fb, "workflow.steps must be a mapping")
}
