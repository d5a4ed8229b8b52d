package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/genguard/llm"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain code untouched",
			input: "def f():\n    return 1\n",
			want:  "def f():\n    return 1",
		},
		{
			name:  "python fence",
			input: "```python\nimport os\n\ndef f():\n    return os.getenv('X')\n```",
			want:  "import os\n\ndef f():\n    return os.getenv('X')",
		},
		{
			name:  "fence with prose around",
			input: "Here is the agent:\n\n```python\nx = 1\n```\n\nThis code sets x.",
			want:  "x = 1",
		},
		{
			name:  "only first fenced block",
			input: "```python\na = 1\n```\nand\n```python\nb = 2\n```",
			want:  "a = 1",
		},
		{
			name:  "trailing prose without fence",
			input: "def f():\n    pass\n\nThis implementation is minimal.\nNote: run with python3.",
			want:  "def f():\n    pass",
		},
		{
			name:  "fenced body keeps prose-like last line",
			input: "```python\ndef main():\n    pass\n\nif __name__ == \"__main__\":\n    main()  # this will start the agent\n```\nUsage: run it.",
			want:  "def main():\n    pass\n\nif __name__ == \"__main__\":\n    main()  # this will start the agent",
		},
		{
			name:  "bold headings and numbered lists dropped",
			input: "**Agent code**\nx = 1\n1. All imports are at the top\ny = 2",
			want:  "x = 1\ny = 2",
		},
		{
			name:  "trailing bullet list dropped",
			input: "x = 1\n- sets x\n- nothing else",
			want:  "x = 1",
		},
		{
			name:  "empty input",
			input: "   \n",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractCode(tt.input))
		})
	}
}

func TestExtractYAML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "yaml fence",
			input: "```yaml\nname: agent\nversion: 1.0.0\n```",
			want:  "name: agent\nversion: 1.0.0",
		},
		{
			name:  "no fence",
			input: "\nname: agent\n",
			want:  "name: agent",
		},
		{
			name:  "comments kept",
			input: "Spec below.\n```yaml\n# top\nname: agent\n```\nDone.",
			want:  "# top\nname: agent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractYAML(tt.input))
		})
	}
}
