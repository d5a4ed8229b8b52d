package retry

import (
	"fmt"
	"strings"

	"github.com/c360studio/genguard/validation"
)

// DefaultContextLines is the number of lines shown on each side of a failure.
const DefaultContextLines = 3

// CodeConstraints restates the rules generated program text must follow.
const CodeConstraints = `CRITICAL FIX REQUIRED:
- Check all brackets (), [], {} are properly closed
- Check all quotes are properly closed
- Ensure proper indentation
- Make sure all function/class bodies are complete
- Do not call eval, exec, compile, open, input or spawn processes
- Do not import subprocess, socket, pickle, ctypes or similar low-level modules
- Use os only through os.getenv, os.environ.get and os.path
- Read credentials from environment variables, never hardcode them`

// SpecConstraints restates the rules a generated agent specification must follow.
const SpecConstraints = `CRITICAL FIX REQUIRED:
- Output a single YAML mapping, no prose
- Include agent_name, agent_type, version, description, role, capabilities, workflow and dependencies
- agent_type is one of data_retrieval, calculation, validation, orchestration, monitoring, transformation
- role is one of primary_agent, secondary_agent, support_agent, orchestrator
- version must be semantic (e.g. 1.0.0)
- capabilities and testing.test_scenarios must be lists of records with a name
- workflow.steps must be a mapping of step name to step details, not a list
- dependencies must be a mapping (e.g. python_packages: [pyyaml])`

// Feedback describes a failed validation so the next generation can fix it:
// the first ERROR issue, a numbered window of the artifact around its
// line, and the constraints block.
func Feedback(artifact string, result *validation.Result, contextLines int, constraints string) string {
	var b strings.Builder
	b.WriteString("PREVIOUS ATTEMPT FAILED VALIDATION:\n")

	issue, ok := result.FirstError()
	if !ok {
		// Invalid on score alone.
		fmt.Fprintf(&b, "Error: %s\n", result.Summary)
	} else {
		fmt.Fprintf(&b, "Error: %s\n", issue.Message)
		if !issue.Location.IsZero() {
			fmt.Fprintf(&b, "Location: %s\n", issue.Location)
		}
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, "Suggestion: %s\n", issue.Suggestion)
		}
		if window := contextWindow(artifact, issue.Location.Line, contextLines); window != "" {
			b.WriteString("Context:\n")
			b.WriteString(window)
		}
	}

	if constraints != "" {
		b.WriteString("\n")
		b.WriteString(constraints)
	}
	return strings.TrimRight(b.String(), "\n")
}

// contextWindow renders lines [line-n, line+n] of text, 1-based and numbered.
func contextWindow(text string, line, n int) string {
	if line <= 0 || text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	start := max(1, line-n)
	end := min(len(lines), line+n)

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
	}
	return b.String()
}

func appendFeedback(acc, next string) string {
	if acc == "" {
		return next
	}
	return acc + "\n\n" + next
}
