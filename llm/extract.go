package llm

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for pulling artifacts out of model responses.
var (
	// fencedBlockPattern matches the first fenced block: ```lang\n ... ```
	fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \\t]*\\n(.*?)\\n?[ \\t]*```")
	// fenceLinePattern matches a line holding only a fence marker.
	fenceLinePattern = regexp.MustCompile("^```[a-zA-Z0-9_+-]*$")
	// numberedProsePattern matches markdown explanation lists ("1. All imports").
	numberedProsePattern = regexp.MustCompile(`^\d+\.\s+[A-Z]`)
)

// Phrases that mark explanatory prose rather than code.
var prosePhrases = []string{
	"this script", "this code", "the above", "this will", "this implementation",
	"note:", "explanation:", "usage:", "example:", "to use", "to run",
}

// ExtractCode strips markdown fences and surrounding explanatory prose from
// a response that should contain program source. Trailing prose is only
// trimmed from unfenced responses; a closing fence already ends the code.
func ExtractCode(content string) string {
	body, fenced := fencedBody(content)

	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		s := strings.TrimSpace(line)
		switch {
		case fenceLinePattern.MatchString(s):
			continue
		case len(s) > 4 && strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**"):
			continue
		case numberedProsePattern.MatchString(s):
			continue
		}
		kept = append(kept, line)
	}

	// Drop trailing lines that read as prose.
	end := len(kept)
	for !fenced && end > 0 {
		s := strings.TrimSpace(kept[end-1])
		if s == "" || isProse(s) {
			end--
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(kept[:end], "\n"))
}

// ExtractYAML strips markdown fences from a response that should contain a
// YAML document.
func ExtractYAML(content string) string {
	body, _ := fencedBody(content)

	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if fenceLinePattern.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// fencedBody returns the first fenced block, or the whole content when there is none.
func fencedBody(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return m[1], true
	}
	return content, false
}

func isProse(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range prosePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	c := line[0]
	isCodeStart := c == '#' || c == '"' || c == '\'' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		strings.ContainsRune("()[]{}@", rune(c))
	return !isCodeStart
}
