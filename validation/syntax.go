package validation

import (
	"github.com/c360studio/genguard/ast"
)

// SyntaxValidator reports parse failures and skeleton problems.
// It never parses; it is handed the outcome of a single parse.
type SyntaxValidator struct{}

// Check builds a result from a parsed tree, or from the failure that
// prevented one. Exactly one of tree and failure should be non-nil.
func (SyntaxValidator) Check(tree *ast.Tree, failure *ast.ParseFailure) *Result {
	if failure != nil || tree == nil {
		if failure == nil {
			failure = &ast.ParseFailure{Message: "no structural tree produced"}
		}
		return newResult(ScoreNone, 0, []Issue{
			errorAt(CategorySyntax, failure.Line, "Syntax error: "+failure.Message,
				"Fix syntax error before proceeding"),
		})
	}

	var issues []Issue
	if tree.TopLevel == 0 {
		issues = append(issues, warningAt(CategorySyntax, 0,
			"empty artifact: code is empty or contains only comments",
			"Ensure code contains actual implementation"))
	}
	if !tree.HasStructure() {
		issues = append(issues, warningAt(CategorySyntax, 0,
			"no structure: code contains no classes or functions",
			"Agent code should contain at least a class definition"))
	}
	return newResult(ScoreNone, 0, issues)
}
