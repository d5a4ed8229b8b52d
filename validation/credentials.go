package validation

import (
	"regexp"
	"sort"
	"strings"
)

type credentialPattern struct {
	re      *regexp.Regexp
	message string
}

var credentialPatterns = []credentialPattern{
	{regexp.MustCompile(`(?i)password\s*=\s*["'][\w]{3,}["']`), "Hardcoded password"},
	{regexp.MustCompile(`(?i)api_key\s*=\s*["'][^"'\n]{8,}["']`), "Hardcoded API key"},
	{regexp.MustCompile(`(?i)secret\s*=\s*["'][^"'\n]{8,}["']`), "Hardcoded secret"},
	{regexp.MustCompile(`(?i)token\s*=\s*["'][^"'\n]{8,}["']`), "Hardcoded token"},
}

// Lines matching any of these read the value from the environment or blank it.
var safeCredentialLines = []*regexp.Regexp{
	regexp.MustCompile(`os\.getenv\(`),
	regexp.MustCompile(`os\.environ`),
	regexp.MustCompile(`getenv\(`),
	regexp.MustCompile(`=\s*["']["']`),
}

// CredentialScanner finds credential-shaped string literals in raw text.
// It works on text alone so it does not depend on the parse tree.
type CredentialScanner struct{}

// Finding is one credential match.
type Finding struct {
	Line    int // 1-based
	Message string
	Text    string // the enclosing line
}

// Scan returns findings ordered by line, then by pattern.
func (CredentialScanner) Scan(text string) []Finding {
	var findings []Finding
	for _, p := range credentialPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			line := enclosingLine(text, loc[0], loc[1])
			if isSafeCredentialLine(line) {
				continue
			}
			findings = append(findings, Finding{
				Line:    strings.Count(text[:loc[0]], "\n") + 1,
				Message: p.message,
				Text:    strings.TrimSpace(line),
			})
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Line < findings[j].Line
	})
	return findings
}

func enclosingLine(text string, start, end int) string {
	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[end:], '\n'); i >= 0 {
		lineEnd = end + i
	}
	return text[lineStart:lineEnd]
}

func isSafeCredentialLine(line string) bool {
	for _, re := range safeCredentialLines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
