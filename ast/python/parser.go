// Package python provides a structural parser for Python artifacts using tree-sitter.
package python

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/genguard/ast"
)

// Language is the registry name of this parser.
const Language = "python"

func init() {
	ast.DefaultRegistry.Register(Language, []string{".py"}, func() ast.Parser {
		return NewParser()
	})
}

// loggingRoots are identifiers whose use counts as logging.
var loggingRoots = map[string]bool{
	"logging": true,
	"loguru":  true,
	"logger":  true,
	"log":     true,
}

// Parser builds ast.Tree values from Python source.
// A fresh tree-sitter parser is created per call, so one Parser is safe to
// share between goroutines.
type Parser struct{}

// NewParser creates a Python parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses src. Source containing syntax errors yields *ast.ParseFailure.
func (p *Parser) Parse(ctx context.Context, src []byte) (*ast.Tree, error) {
	sp := sitter.NewParser()
	sp.SetLanguage(python.GetLanguage())

	tree, err := sp.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, locateFailure(root, src)
	}
	if pf := legacyStatement(root); pf != nil {
		return nil, pf
	}

	w := &walker{src: src, tree: &ast.Tree{Language: Language}}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		w.tree.TopLevel++
	}
	if isDocstringBody(root) {
		w.tree.Features.HasDocstrings = true
	}
	w.walk(root, 0)
	return w.tree, nil
}

// locateFailure finds the first ERROR or MISSING node in document order.
func locateFailure(root *sitter.Node, src []byte) *ast.ParseFailure {
	bad := firstBadNode(root)
	if bad == nil {
		return &ast.ParseFailure{Message: "invalid syntax"}
	}

	pf := &ast.ParseFailure{
		Line:   int(bad.StartPoint().Row) + 1,
		Column: int(bad.StartPoint().Column) + 1,
	}
	if bad.IsMissing() {
		pf.Message = fmt.Sprintf("missing %q", bad.Type())
		return pf
	}

	snippet := strings.TrimSpace(bad.Content(src))
	if i := strings.IndexByte(snippet, '\n'); i >= 0 {
		snippet = snippet[:i]
	}
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	if snippet == "" {
		pf.Message = "invalid syntax"
	} else {
		pf.Message = fmt.Sprintf("invalid syntax near %q", snippet)
	}
	return pf
}

// legacyStatements are Python 2 statement forms the grammar still accepts.
var legacyStatements = map[string]string{
	"print_statement": "print",
	"exec_statement":  "exec",
}

// legacyStatement reports the first Python 2 print or exec statement.
func legacyStatement(n *sitter.Node) *ast.ParseFailure {
	if kw, ok := legacyStatements[n.Type()]; ok {
		return &ast.ParseFailure{
			Line:    int(n.StartPoint().Row) + 1,
			Column:  int(n.StartPoint().Column) + 1,
			Message: fmt.Sprintf("Python 2 %s statement not supported", kw),
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if pf := legacyStatement(n.NamedChild(i)); pf != nil {
			return pf
		}
	}
	return nil
}

func firstBadNode(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstBadNode(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

type walker struct {
	src  []byte
	tree *ast.Tree
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// walk visits n and its named descendants in source order.
// depth counts enclosing class and function definitions.
func (w *walker) walk(n *sitter.Node, depth int) {
	switch n.Type() {
	case "class_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			w.tree.Classes = append(w.tree.Classes, ast.Decl{
				Name:   w.text(name),
				Line:   line(n),
				Nested: depth > 0,
			})
		}
		w.markDocstring(n)
		w.walkChildren(n, depth+1)
		return

	case "function_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			w.tree.Functions = append(w.tree.Functions, ast.Decl{
				Name:   w.text(name),
				Line:   line(n),
				Async:  isAsync(n),
				Nested: depth > 0,
			})
		}
		if n.ChildByFieldName("return_type") != nil {
			w.tree.Features.HasAnnotations = true
		}
		w.markDocstring(n)
		w.walkChildren(n, depth+1)
		return

	case "import_statement":
		w.importStatement(n)
		return

	case "import_from_statement":
		w.importFrom(n)
		return

	case "call":
		w.call(n)

	case "attribute":
		w.attribute(n, depth)
		return

	case "try_statement":
		w.tree.Features.HasTry = true

	case "type":
		w.tree.Features.HasAnnotations = true

	case "identifier":
		if loggingRoots[w.text(n)] {
			w.tree.Features.HasLogging = true
		}
	}

	w.walkChildren(n, depth)
}

func (w *walker) walkChildren(n *sitter.Node, depth int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), depth)
	}
}

func (w *walker) markDocstring(def *sitter.Node) {
	if body := def.ChildByFieldName("body"); body != nil && isDocstringBody(body) {
		w.tree.Features.HasDocstrings = true
	}
}

// isDocstringBody reports whether the first statement of a block is a bare string.
func isDocstringBody(block *sitter.Node) bool {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		return stmt.Type() == "expression_statement" &&
			stmt.NamedChildCount() > 0 &&
			stmt.NamedChild(0).Type() == "string"
	}
	return false
}

func isAsync(def *sitter.Node) bool {
	for i := 0; i < int(def.ChildCount()); i++ {
		if def.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

// importStatement handles "import a.b as c, d".
func (w *walker) importStatement(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		imp := ast.Import{Line: line(n)}
		switch child.Type() {
		case "dotted_name":
			imp.Module = w.text(child)
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Module = w.text(name)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = w.text(alias)
			}
		default:
			continue
		}
		if imp.Module == "" {
			continue
		}
		imp.Root, _, _ = strings.Cut(imp.Module, ".")
		w.trackLoggingImport(imp.Root)
		w.tree.Imports = append(w.tree.Imports, imp)
	}
}

// importFrom handles "from a.b import c as d", relative and wildcard forms.
func (w *walker) importFrom(n *sitter.Node) {
	imp := ast.Import{From: true, Line: line(n)}

	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode != nil {
		if moduleNode.Type() == "relative_import" {
			imp.Relative = true
			for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
				if c := moduleNode.NamedChild(i); c.Type() == "dotted_name" {
					imp.Module = w.text(c)
				}
			}
		} else {
			imp.Module = w.text(moduleNode)
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if moduleNode != nil && sameSpan(child, moduleNode) {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			imp.Wildcard = true
		case "dotted_name":
			imp.Names = append(imp.Names, ast.ImportedName{Name: w.text(child)})
		case "aliased_import":
			name := ast.ImportedName{}
			if nn := child.ChildByFieldName("name"); nn != nil {
				name.Name = w.text(nn)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				name.Alias = w.text(alias)
			}
			imp.Names = append(imp.Names, name)
		}
	}

	imp.Root, _, _ = strings.Cut(imp.Module, ".")
	w.trackLoggingImport(imp.Root)
	w.tree.Imports = append(w.tree.Imports, imp)
}

func sameSpan(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func (w *walker) trackLoggingImport(root string) {
	if root == "logging" || root == "loguru" {
		w.tree.Features.HasLogging = true
	}
}

// call records the callee; children are walked by the caller.
func (w *walker) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	c := ast.Call{Line: line(n)}
	switch fn.Type() {
	case "identifier":
		c.Name = w.text(fn)
		c.Qualified = c.Name
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			c.Name = w.text(attr)
		}
		if root, path, ok := w.chain(fn); ok {
			c.Qualified = ast.Access{Root: root, Path: path}.String()
		}
	default:
		return
	}
	if c.Name != "" {
		w.tree.Calls = append(w.tree.Calls, c)
	}
}

// attribute records a maximal attribute chain and walks whatever it is rooted on.
func (w *walker) attribute(n *sitter.Node, depth int) {
	if root, path, ok := w.chain(n); ok {
		w.tree.Accesses = append(w.tree.Accesses, ast.Access{Root: root, Path: path, Line: line(n)})
		if loggingRoots[root] {
			w.tree.Features.HasLogging = true
		}
		return
	}
	base := n
	for base.Type() == "attribute" {
		obj := base.ChildByFieldName("object")
		if obj == nil {
			return
		}
		base = obj
	}
	w.walk(base, depth)
}

// chain resolves a.b.c into ("a", ["b", "c"]) when the base is an identifier.
func (w *walker) chain(n *sitter.Node) (string, []string, bool) {
	var path []string
	cur := n
	for cur.Type() == "attribute" {
		attr := cur.ChildByFieldName("attribute")
		obj := cur.ChildByFieldName("object")
		if attr == nil || obj == nil {
			return "", nil, false
		}
		path = append([]string{w.text(attr)}, path...)
		cur = obj
	}
	if cur.Type() != "identifier" {
		return "", nil, false
	}
	return w.text(cur), path, true
}
