// Package ast provides the language-neutral structural tree that validators
// analyze, plus a registry of language parsers that produce it.
package ast

import (
	"context"
	"strings"
)

// Parser turns artifact text into a structural Tree.
// For malformed input the only error returned is *ParseFailure; any other
// error means the parser itself could not run (e.g. context cancelled).
type Parser interface {
	Parse(ctx context.Context, src []byte) (*Tree, error)
}

// Tree is the structural view of one artifact.
type Tree struct {
	// Language is the registered parser name (e.g. "python").
	Language string

	// TopLevel counts top-level statements, excluding comments.
	TopLevel int

	// Classes and Functions include definitions at any depth, in source order.
	Classes   []Decl
	Functions []Decl

	// Imports in source order.
	Imports []Import

	// Calls lists every call expression in source order.
	Calls []Call

	// Accesses lists maximal attribute chains rooted at a bare identifier.
	Accesses []Access

	// Features are coarse quality hints.
	Features Features
}

// Decl is a class-like or function-like definition.
type Decl struct {
	Name   string
	Line   int
	Async  bool
	Nested bool // defined inside another class or function
}

// ImportedName is one name bound by a from-import.
type ImportedName struct {
	Name  string
	Alias string
}

// Import is a single import statement or one module of a multi-module import.
type Import struct {
	// Module is the full dotted module path ("os.path").
	Module string

	// Root is the top-level package ("os"); submodules normalize to it.
	Root string

	// Alias is the "as" name of a plain import, if any.
	Alias string

	// Names are the imported members of a from-import.
	Names []ImportedName

	From     bool
	Relative bool
	Wildcard bool
	Line     int
}

// BoundName returns the local identifier a plain import binds.
// "import os.path" binds "os"; "import os.path as p" binds "p".
// From-imports bind their Names instead and return "".
func (i Import) BoundName() string {
	if i.From {
		return ""
	}
	if i.Alias != "" {
		return i.Alias
	}
	return i.Root
}

// SubPath returns the module path below Root ("os.path" -> "path").
func (i Import) SubPath() string {
	_, rest, _ := strings.Cut(i.Module, ".")
	return rest
}

// Call is a call expression.
type Call struct {
	// Name is the resolved callee: the identifier, or the tail of an attribute access.
	Name string

	// Qualified is the dotted callee text when it is a plain name or attribute chain.
	Qualified string

	Line int
}

// Access is an attribute chain such as os.environ.get.
type Access struct {
	Root string
	Path []string
	Line int
}

// Member returns the dotted path below the root ("environ.get").
func (a Access) Member() string {
	return strings.Join(a.Path, ".")
}

// String returns the full dotted expression.
func (a Access) String() string {
	if len(a.Path) == 0 {
		return a.Root
	}
	return a.Root + "." + a.Member()
}

// Features records coarse properties used for quality hints.
type Features struct {
	HasTry         bool
	HasAnnotations bool
	HasDocstrings  bool
	HasLogging     bool
}

// HasStructure reports whether the tree defines any class or function.
func (t *Tree) HasStructure() bool {
	return len(t.Classes) > 0 || len(t.Functions) > 0
}
