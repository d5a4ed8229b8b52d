package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/genguard/ast"
	"github.com/c360studio/genguard/policy"
)

// Risk is accumulated in hundredths so that sums are exact.
const (
	riskDeniedCall     = 30
	riskDeniedImport   = 40
	riskConditional    = 30
	riskUnknownImport  = 10
	riskCredential     = 30
	riskWarningCeiling = 40 // warnings alone stay below RiskThreshold
	riskCeiling        = 100
)

// DefaultMaxFunctions is the function count above which a quality warning is raised.
const DefaultMaxFunctions = 50

// PolicyValidator applies a policy.Table to a parsed artifact and scans its
// raw text for credential literals.
type PolicyValidator struct {
	table        *policy.Table
	scanner      CredentialScanner
	maxFunctions int
	logger       *slog.Logger
}

// PolicyOption configures a PolicyValidator.
type PolicyOption func(*PolicyValidator)

// WithMaxFunctions sets the complexity warning threshold.
func WithMaxFunctions(n int) PolicyOption {
	return func(v *PolicyValidator) {
		if n > 0 {
			v.maxFunctions = n
		}
	}
}

// WithPolicyLogger sets the logger.
func WithPolicyLogger(l *slog.Logger) PolicyOption {
	return func(v *PolicyValidator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewPolicyValidator creates a validator over table. A nil table uses policy.Default().
func NewPolicyValidator(table *policy.Table, opts ...PolicyOption) *PolicyValidator {
	if table == nil {
		table = policy.Default()
	}
	v := &PolicyValidator{
		table:        table,
		maxFunctions: DefaultMaxFunctions,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// riskTally tracks error and warning risk separately so the warning ceiling holds.
type riskTally struct {
	errors   int
	warnings int
}

func (t riskTally) score() float64 {
	w := min(t.warnings, riskWarningCeiling)
	return float64(min(t.errors+w, riskCeiling)) / 100
}

// Check evaluates a parsed tree together with the text it was parsed from.
func (v *PolicyValidator) Check(tree *ast.Tree, text string) *Result {
	var (
		issues []Issue
		risk   riskTally
	)

	for _, c := range tree.Calls {
		if !v.table.IsDeniedCall(c.Name) {
			continue
		}
		issues = append(issues, errorAt(CategorySecurity, c.Line,
			fmt.Sprintf("Dangerous function call: %s()", c.Name),
			fmt.Sprintf("Remove %s() - not allowed in generated code", c.Name)))
		risk.errors += riskDeniedCall
	}

	importIssues, bindings := v.checkImports(tree, &risk)
	issues = append(issues, importIssues...)
	issues = append(issues, v.checkAccesses(tree, bindings, &risk)...)

	for _, f := range v.scanner.Scan(text) {
		issues = append(issues, errorAt(CategorySecurity, f.Line, f.Message,
			"Use environment variables or config instead"))
		risk.errors += riskCredential
	}

	if n := len(tree.Functions); n > v.maxFunctions {
		issues = append(issues, warningAt(CategoryQuality, 0,
			fmt.Sprintf("Very high function count: %d", n),
			"Consider breaking into multiple files"))
	}

	r := newResult(ScoreRisk, risk.score(), issues)
	v.logger.Debug("Policy check complete",
		"risk", r.Score,
		"errors", len(r.Errors()),
		"warnings", len(r.Warnings()))
	return r
}

// binding is a local name bound to a conditional module or one of its members.
type binding struct {
	module string
	prefix string // dotted path below the module root, from "import os.path as p" or "from os import environ"
}

func (v *PolicyValidator) checkImports(tree *ast.Tree, risk *riskTally) ([]Issue, map[string]binding) {
	var issues []Issue
	bindings := make(map[string]binding)

	for _, imp := range tree.Imports {
		if imp.Relative || imp.Root == "" {
			continue
		}
		switch v.table.Classify(imp.Root) {
		case policy.Denied:
			msg := "Dangerous import: " + imp.Root
			suggestion := fmt.Sprintf("Remove 'import %s' - not allowed", imp.Root)
			if imp.From {
				msg = "Dangerous import: from " + imp.Root
				suggestion = fmt.Sprintf("Remove 'from %s import ...' - not allowed", imp.Root)
			}
			issues = append(issues, errorAt(CategorySecurity, imp.Line, msg, suggestion))
			risk.errors += riskDeniedImport

		case policy.Conditional:
			if !imp.From {
				b := binding{module: imp.Root}
				if imp.Alias != "" {
					b.prefix = imp.SubPath()
				}
				bindings[imp.BoundName()] = b
				continue
			}
			issues = append(issues, v.checkFromImport(imp, bindings, risk)...)

		case policy.Unknown:
			issues = append(issues, warningAt(CategorySecurity, imp.Line,
				"Uncommon import: "+imp.Root+" (verify necessity)",
				fmt.Sprintf("Verify %s is necessary and safe", imp.Root)))
			risk.warnings += riskUnknownImport
		}
	}
	return issues, bindings
}

// checkFromImport treats each imported name as an access on the module.
// A name that is not itself allowed but has allowed members is bound, so
// its uses are judged by checkAccesses.
func (v *PolicyValidator) checkFromImport(imp ast.Import, bindings map[string]binding, risk *riskTally) []Issue {
	var issues []Issue
	allowed := v.table.AllowedAccesses(imp.Root)

	if imp.Wildcard && len(allowed) > 0 {
		issues = append(issues, v.accessViolation(imp.Line,
			fmt.Sprintf("from %s import *", imp.Module), imp.Root, allowed))
		risk.errors += riskConditional
	}
	for _, name := range imp.Names {
		path := joinPath(imp.SubPath(), name.Name)
		if v.table.AllowsAccess(imp.Root, path) {
			continue
		}
		if v.table.AllowsMembersOf(imp.Root, path) {
			local := name.Alias
			if local == "" {
				local = name.Name
			}
			bindings[local] = binding{module: imp.Root, prefix: path}
			continue
		}
		issues = append(issues, v.accessViolation(imp.Line, imp.Root+"."+path, imp.Root, allowed))
		risk.errors += riskConditional
	}
	return issues
}

func (v *PolicyValidator) checkAccesses(tree *ast.Tree, bindings map[string]binding, risk *riskTally) []Issue {
	if len(bindings) == 0 {
		return nil
	}
	var issues []Issue
	for _, acc := range tree.Accesses {
		b, ok := bindings[acc.Root]
		if !ok {
			continue
		}
		path := joinPath(b.prefix, acc.Member())
		if v.table.AllowsAccess(b.module, path) {
			continue
		}
		issues = append(issues, v.accessViolation(acc.Line, b.module+"."+path, b.module,
			v.table.AllowedAccesses(b.module)))
		risk.errors += riskConditional
	}
	return issues
}

func (v *PolicyValidator) accessViolation(line int, access, module string, allowed []string) Issue {
	return errorAt(CategorySecurity, line,
		fmt.Sprintf("Unsafe usage of %s (allowed for %s: %s)", access, module, strings.Join(allowed, ", ")),
		fmt.Sprintf("Only %s are allowed for %s", strings.Join(allowed, ", "), module))
}

func joinPath(prefix, member string) string {
	switch {
	case prefix == "":
		return member
	case member == "":
		return prefix
	default:
		return prefix + "." + member
	}
}
