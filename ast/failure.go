package ast

import (
	"errors"
	"fmt"
)

// ParseFailure reports that artifact text is not well formed.
// Line is 1-based; 0 means the backend could not localize the error.
type ParseFailure struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseFailure) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Message)
	}
	return "syntax error: " + e.Message
}

// AsParseFailure extracts a *ParseFailure from err, if present.
func AsParseFailure(err error) (*ParseFailure, bool) {
	var pf *ParseFailure
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
