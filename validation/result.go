package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RiskThreshold is the risk score at or above which an artifact fails,
// independent of the issues it carries.
const RiskThreshold = 0.5

// ErrPolicyViolation is wrapped by the error returned from Result.Err.
var ErrPolicyViolation = errors.New("policy violation")

// ScoreKind says what Result.Score measures.
type ScoreKind string

const (
	ScoreNone         ScoreKind = "none"
	ScoreRisk         ScoreKind = "risk"
	ScoreCompleteness ScoreKind = "completeness"
)

// Result is the outcome of one validation run. Validity is derived from the
// issues and score on every call to Valid; it is never stored.
//
// Results are shared read-only once returned. Do not modify Issues.
type Result struct {
	Issues    []Issue
	Score     float64
	ScoreKind ScoreKind
	Summary   string
}

func newResult(kind ScoreKind, score float64, issues []Issue) *Result {
	r := &Result{
		Issues:    issues,
		Score:     clamp(score),
		ScoreKind: kind,
	}
	r.Summary = r.summarize()
	return r
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Valid reports whether the artifact passed: no ERROR issue and, for risk
// scores, a score below RiskThreshold.
func (r *Result) Valid() bool {
	if r.HasErrors() {
		return false
	}
	if r.ScoreKind == ScoreRisk && r.Score >= RiskThreshold {
		return false
	}
	return true
}

// HasErrors reports whether any ERROR issue is present.
func (r *Result) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the ERROR issues in discovery order.
func (r *Result) Errors() []Issue { return r.filter(SeverityError) }

// Warnings returns the WARNING issues in discovery order.
func (r *Result) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r *Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// FirstError returns the first ERROR issue.
func (r *Result) FirstError() (Issue, bool) {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return is, true
		}
	}
	return Issue{}, false
}

// Err returns nil for a valid result and a *ViolationError otherwise.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ViolationError{Result: r}
}

func (r *Result) summarize() string {
	var b strings.Builder
	if r.Valid() {
		b.WriteString("valid")
	} else {
		b.WriteString("invalid")
	}
	fmt.Fprintf(&b, ": %d error(s), %d warning(s)", len(r.Errors()), len(r.Warnings()))
	switch r.ScoreKind {
	case ScoreRisk:
		fmt.Fprintf(&b, ", risk %.2f", r.Score)
	case ScoreCompleteness:
		fmt.Fprintf(&b, ", completeness %.0f%%", r.Score*100)
	}
	return b.String()
}

type resultJSON struct {
	Valid     bool      `json:"valid"`
	Score     float64   `json:"score"`
	ScoreKind ScoreKind `json:"score_kind"`
	Summary   string    `json:"summary"`
	Issues    []Issue   `json:"issues"`
}

// MarshalJSON includes the derived valid flag.
func (r *Result) MarshalJSON() ([]byte, error) {
	issues := r.Issues
	if issues == nil {
		issues = []Issue{}
	}
	return json.Marshal(resultJSON{
		Valid:     r.Valid(),
		Score:     r.Score,
		ScoreKind: r.ScoreKind,
		Summary:   r.Summary,
		Issues:    issues,
	})
}

// ViolationError reports an invalid Result.
type ViolationError struct {
	Result *Result
}

func (e *ViolationError) Error() string {
	if is, ok := e.Result.FirstError(); ok {
		return fmt.Sprintf("%v: %s", ErrPolicyViolation, is.Message)
	}
	return fmt.Sprintf("%v: %s", ErrPolicyViolation, e.Result.Summary)
}

func (e *ViolationError) Unwrap() error { return ErrPolicyViolation }
