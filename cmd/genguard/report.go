package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/c360studio/genguard/validation"
)

var (
	passColor    = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	hintColor    = color.New(color.Faint)
)

// report is one validated artifact.
type report struct {
	Path   string             `json:"path"`
	Result *validation.Result `json:"result"`
}

func severityColor(sev validation.Severity) *color.Color {
	switch sev {
	case validation.SeverityError:
		return errorColor
	case validation.SeverityWarning:
		return warningColor
	default:
		return infoColor
	}
}

func writeTextReport(w io.Writer, r report) {
	status := passColor.Sprint("PASS")
	if !r.Result.Valid() {
		status = failColor.Sprint("FAIL")
	}
	fmt.Fprintf(w, "%s %s (%s %.2f) %s\n", status, r.Path, r.Result.ScoreKind, r.Result.Score, r.Result.Summary)

	for _, is := range r.Result.Issues {
		loc := ""
		if !is.Location.IsZero() {
			loc = is.Location.String() + ": "
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", severityColor(is.Severity).Sprint(is.Severity), is.Category, loc, is.Message)
		if is.Suggestion != "" {
			fmt.Fprintf(w, "    %s\n", hintColor.Sprint("suggestion: "+is.Suggestion))
		}
	}
}

func writeTextReports(w io.Writer, reports []report) {
	passed := 0
	for _, r := range reports {
		writeTextReport(w, r)
		if r.Result.Valid() {
			passed++
		}
	}
	if len(reports) > 1 {
		fmt.Fprintf(w, "\n%d/%d passed\n", passed, len(reports))
	}
}

func writeJSONReports(w io.Writer, reports []report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func anyInvalid(reports []report) bool {
	for _, r := range reports {
		if !r.Result.Valid() {
			return true
		}
	}
	return false
}
