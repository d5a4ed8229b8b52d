package validation

import (
	"context"
	"log/slog"

	"github.com/c360studio/genguard/ast"
	"github.com/c360studio/genguard/policy"
)

// CodeValidator validates program text: one parse, then syntax checks, then
// policy checks. Policy checks never run on text that failed to parse.
type CodeValidator struct {
	parser ast.Parser
	syntax SyntaxValidator
	policy *PolicyValidator
	hints  bool
	logger *slog.Logger
}

// CodeOption configures a CodeValidator.
type CodeOption func(*codeOptions)

type codeOptions struct {
	hints        bool
	maxFunctions int
	logger       *slog.Logger
}

// WithHints adds INFO issues for missing error handling, annotations, docstrings and logging.
func WithHints(enabled bool) CodeOption {
	return func(o *codeOptions) { o.hints = enabled }
}

// WithFunctionLimit sets the complexity warning threshold.
func WithFunctionLimit(n int) CodeOption {
	return func(o *codeOptions) { o.maxFunctions = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CodeOption {
	return func(o *codeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewCodeValidator creates a validator that parses with parser and checks
// against table (policy.Default() when nil).
func NewCodeValidator(parser ast.Parser, table *policy.Table, opts ...CodeOption) *CodeValidator {
	o := codeOptions{maxFunctions: DefaultMaxFunctions, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &CodeValidator{
		parser: parser,
		policy: NewPolicyValidator(table, WithMaxFunctions(o.maxFunctions), WithPolicyLogger(o.logger)),
		hints:  o.hints,
		logger: o.logger,
	}
}

// Validate implements Validator.
func (v *CodeValidator) Validate(ctx context.Context, artifact string) *Result {
	tree, err := v.parser.Parse(ctx, []byte(artifact))
	if err != nil {
		pf, ok := ast.AsParseFailure(err)
		if !ok {
			pf = &ast.ParseFailure{Message: err.Error()}
		}
		v.logger.Debug("Syntax validation failed, skipping policy checks", "line", pf.Line, "error", pf.Message)
		return v.syntax.Check(nil, pf)
	}

	syn := v.syntax.Check(tree, nil)
	pol := v.policy.Check(tree, artifact)

	issues := make([]Issue, 0, len(syn.Issues)+len(pol.Issues))
	issues = append(issues, syn.Issues...)
	issues = append(issues, pol.Issues...)
	if v.hints {
		issues = append(issues, qualityHints(tree)...)
	}
	return newResult(ScoreRisk, pol.Score, issues)
}

func qualityHints(tree *ast.Tree) []Issue {
	var hints []Issue
	add := func(msg, suggestion string) {
		hints = append(hints, Issue{
			Severity:   SeverityInfo,
			Category:   CategoryQuality,
			Message:    msg,
			Suggestion: suggestion,
		})
	}
	f := tree.Features
	if !f.HasTry {
		add("No error handling found", "Wrap fallible operations in try/except")
	}
	if !f.HasAnnotations {
		add("No type annotations found", "Annotate function parameters and return values")
	}
	if !f.HasDocstrings {
		add("No docstrings found", "Document modules, classes and functions")
	}
	if !f.HasLogging {
		add("No logging found", "Log progress and failures instead of printing")
	}
	return hints
}
