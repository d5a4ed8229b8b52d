package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Kind is the container or scalar shape of a document value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
	KindNull   Kind = "null"
)

// KindOf returns the Kind of a decoded document value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case []any:
		return KindList
	default:
		if _, ok := asMap(v); ok {
			return KindMap
		}
		return ""
	}
}

// RecordSpec describes the entries of a list-of-records field.
type RecordSpec struct {
	// NameKey must be present in every mapping entry.
	NameKey string
	// AllowStrings accepts bare strings as named records.
	AllowStrings bool
}

// FieldSpec describes one field of a Schema.
type FieldSpec struct {
	// Path is dotted ("workflow.steps"). Nested fields are checked only when
	// their parent is a mapping.
	Path string

	// Kinds lists acceptable shapes; empty accepts anything.
	Kinds []Kind

	// Required fields must be present.
	Required bool

	// Strict makes a wrong kind an ERROR even when the field is optional.
	Strict bool

	// Recommended fields produce a WARNING when absent or empty.
	Recommended bool

	// Tracked fields count towards completeness.
	Tracked bool

	// Enum is the known vocabulary for string values; others are a WARNING.
	Enum []string

	// Pattern is matched against string values; a mismatch is a WARNING.
	Pattern     *regexp.Regexp
	PatternHint string

	// Records applies when the value is a list.
	Records *RecordSpec

	// AbsentNote is reported as INFO when an optional field is absent.
	AbsentNote string
	// EmptyNote is reported as INFO when the value, or every value of a
	// mapping, is empty.
	EmptyNote string
}

// Schema is an ordered list of field rules.
type Schema struct {
	Fields []FieldSpec
}

// SchemaValidator validates structured documents. It does not use the
// structural tree; program text is never passed to it.
type SchemaValidator struct {
	schema Schema
}

// NewSchemaValidator creates a validator for schema.
func NewSchemaValidator(schema Schema) *SchemaValidator {
	return &SchemaValidator{schema: schema}
}

// Validate parses artifact as YAML and checks it. A document that does not
// parse to a mapping yields a single ERROR.
func (v *SchemaValidator) Validate(_ context.Context, artifact string) *Result {
	doc, err := ParseDocument(artifact)
	if err != nil {
		if errors.Is(err, ErrNotMapping) {
			return newResult(ScoreCompleteness, 0, []Issue{{
				Severity:   SeverityError,
				Category:   CategorySyntax,
				Message:    "Specification must be a YAML mapping",
				Location:   Location{Field: "root"},
				Suggestion: "Ensure the YAML starts with key-value pairs",
			}})
		}
		return newResult(ScoreCompleteness, 0, []Issue{{
			Severity:   SeverityError,
			Category:   CategorySyntax,
			Message:    "YAML parsing error: " + err.Error(),
			Location:   Location{Line: yamlErrorLine(err), Field: "yaml_syntax"},
			Suggestion: "Check YAML syntax and indentation",
		}})
	}
	return v.Check(doc)
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

func yamlErrorLine(err error) int {
	m := yamlLineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Check validates an already parsed document.
func (v *SchemaValidator) Check(doc Document) *Result {
	var (
		issues  []Issue
		tracked int
		present int
	)
	for _, f := range v.schema.Fields {
		val, found, reachable := resolve(doc, f.Path)
		if f.Tracked {
			tracked++
			if found && !isEmpty(val) {
				present++
			}
		}
		if !reachable {
			continue
		}
		issues = append(issues, checkField(f, val, found)...)
	}

	score := 1.0
	if tracked > 0 {
		score = float64(present) / float64(tracked)
	}
	return newResult(ScoreCompleteness, score, issues)
}

// resolve reports the value at path, whether it exists, and whether its
// parent is a mapping.
func resolve(doc Document, path string) (val any, found, reachable bool) {
	parent, key := "", path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		parent, key = path[:i], path[i+1:]
	}
	container := map[string]any(doc)
	if parent != "" {
		pv, ok := doc.Lookup(parent)
		if !ok {
			return nil, false, false
		}
		if container, ok = asMap(pv); !ok {
			return nil, false, false
		}
	}
	val, found = container[key]
	return val, found, true
}

func checkField(f FieldSpec, val any, found bool) []Issue {
	if !found {
		switch {
		case f.Required:
			return []Issue{fieldIssue(SeverityError, f.Path,
				fmt.Sprintf("Required field '%s' is missing", f.Path),
				fmt.Sprintf("Add '%s' to the specification", f.Path))}
		case f.Recommended:
			return []Issue{fieldIssue(SeverityWarning, f.Path,
				fmt.Sprintf("Field '%s' is not defined", f.Path),
				fmt.Sprintf("Add '%s'", f.Path))}
		case f.AbsentNote != "":
			return []Issue{fieldIssue(SeverityInfo, f.Path, f.AbsentNote, "")}
		}
		return nil
	}

	kind := KindOf(val)
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, kind) {
		sev := SeverityWarning
		if f.Required || f.Strict {
			sev = SeverityError
		}
		return []Issue{fieldIssue(sev, f.Path,
			fmt.Sprintf("Field '%s' must be %s, got %s", f.Path, kindList(f.Kinds), kindName(kind)),
			fmt.Sprintf("Change '%s' to %s", f.Path, kindList(f.Kinds)))}
	}

	var issues []Issue
	if s, ok := val.(string); ok {
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			issues = append(issues, fieldIssue(SeverityWarning, f.Path,
				fmt.Sprintf("Value '%s' for '%s' is not in the standard vocabulary", s, f.Path),
				"Consider using one of: "+strings.Join(f.Enum, ", ")))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(s) {
			hint := f.PatternHint
			if hint == "" {
				hint = f.Pattern.String()
			}
			issues = append(issues, fieldIssue(SeverityWarning, f.Path,
				fmt.Sprintf("Field '%s' should match %s", f.Path, hint),
				"Use format like "+hint))
		}
	}

	if f.Records != nil && kind == KindList {
		issues = append(issues, checkRecords(f, val.([]any))...)
	}

	if f.Recommended && isEmpty(val) {
		issues = append(issues, fieldIssue(SeverityWarning, f.Path,
			fmt.Sprintf("Field '%s' is empty", f.Path),
			fmt.Sprintf("Define at least one entry in '%s'", f.Path)))
	}
	if f.EmptyNote != "" && allEmpty(val) {
		issues = append(issues, fieldIssue(SeverityInfo, f.Path, f.EmptyNote, ""))
	}
	return issues
}

// allEmpty reports whether v is empty, or is a mapping of empty values.
func allEmpty(v any) bool {
	m, ok := asMap(v)
	if !ok {
		return isEmpty(v)
	}
	for _, x := range m {
		if !isEmpty(x) {
			return false
		}
	}
	return true
}

func checkRecords(f FieldSpec, items []any) []Issue {
	if len(items) == 0 {
		return []Issue{fieldIssue(SeverityWarning, f.Path,
			fmt.Sprintf("List '%s' is empty", f.Path),
			fmt.Sprintf("Define at least one entry in '%s'", f.Path))}
	}
	var issues []Issue
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", f.Path, i)
		if _, ok := item.(string); ok && f.Records.AllowStrings {
			continue
		}
		m, ok := asMap(item)
		if !ok {
			shape := "a mapping"
			if f.Records.AllowStrings {
				shape = "a string or mapping"
			}
			issues = append(issues, fieldIssue(SeverityError, field,
				fmt.Sprintf("Entry must be %s", shape),
				fmt.Sprintf("Define the entry as an object with '%s'", f.Records.NameKey)))
			continue
		}
		if _, ok := m[f.Records.NameKey]; !ok {
			issues = append(issues, fieldIssue(SeverityError, field,
				fmt.Sprintf("Entry missing '%s' field", f.Records.NameKey),
				fmt.Sprintf("Add '%s' field to the entry", f.Records.NameKey)))
		}
	}
	return issues
}

// isEmpty mirrors truthiness of decoded values.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case []any:
		return len(x) == 0
	case int:
		return x == 0
	case float64:
		return x == 0
	}
	if m, ok := asMap(v); ok {
		return len(m) == 0
	}
	return false
}

func kindList(kinds []Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, " or ")
}

func kindName(k Kind) string {
	if k == "" {
		return "unknown"
	}
	return string(k)
}
