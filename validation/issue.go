// Package validation analyzes generated artifacts and reports issues with a
// quantified score. Validators are pure: the same input always yields an
// identical Result.
package validation

import "fmt"

// Severity of an issue. Only ERROR gates validity.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Category groups issues by the check that produced them.
type Category string

const (
	CategorySyntax    Category = "syntax"
	CategorySecurity  Category = "security"
	CategoryQuality   Category = "quality"
	CategoryStructure Category = "structure"
)

// Location points at the origin of an issue: a 1-based line in program text
// or a dotted field path in a document. Zero values mean unknown.
type Location struct {
	Line  int    `json:"line,omitempty"`
	Field string `json:"field,omitempty"`
}

// IsZero reports whether no location is known.
func (l Location) IsZero() bool {
	return l.Line == 0 && l.Field == ""
}

func (l Location) String() string {
	switch {
	case l.Line > 0 && l.Field != "":
		return fmt.Sprintf("line %d (%s)", l.Line, l.Field)
	case l.Line > 0:
		return fmt.Sprintf("line %d", l.Line)
	default:
		return l.Field
	}
}

// Issue is a single finding. Issues are values and never modified after creation.
type Issue struct {
	Severity   Severity `json:"severity"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Location   Location `json:"location,omitzero"`
	Suggestion string   `json:"suggestion,omitempty"`
}

func (i Issue) String() string {
	if i.Location.IsZero() {
		return fmt.Sprintf("%s [%s] %s", i.Severity, i.Category, i.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", i.Severity, i.Category, i.Location, i.Message)
}

func errorAt(cat Category, line int, msg, suggestion string) Issue {
	return Issue{Severity: SeverityError, Category: cat, Message: msg, Location: Location{Line: line}, Suggestion: suggestion}
}

func warningAt(cat Category, line int, msg, suggestion string) Issue {
	return Issue{Severity: SeverityWarning, Category: cat, Message: msg, Location: Location{Line: line}, Suggestion: suggestion}
}

func fieldIssue(sev Severity, field, msg, suggestion string) Issue {
	return Issue{Severity: sev, Category: CategoryStructure, Message: msg, Location: Location{Field: field}, Suggestion: suggestion}
}
