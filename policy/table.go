// Package policy defines the import and call-site policy applied to generated code.
//
// A Table is built once, from Default() or a YAML file, and is read-only
// afterwards; it is safe to share between goroutines.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Class is the partition a module falls into.
type Class int

const (
	Unknown Class = iota
	Allowed
	Conditional
	Denied
	Internal
)

func (c Class) String() string {
	switch c {
	case Allowed:
		return "allowed"
	case Conditional:
		return "conditional"
	case Denied:
		return "denied"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Spec holds the raw partitions a Table is built from.
type Spec struct {
	DeniedCalls   []string `yaml:"denied_calls"`
	DeniedImports []string `yaml:"denied_imports"`

	// ConditionalImports maps a module to the dotted member paths code may
	// touch on it. An empty list allows any usage.
	ConditionalImports map[string][]string `yaml:"conditional_imports"`

	AllowedImports   []string `yaml:"allowed_imports"`
	InternalPrefixes []string `yaml:"internal_prefixes"`
}

// Table is an immutable policy.
type Table struct {
	deniedCalls   map[string]bool
	deniedImports map[string]bool
	conditional   map[string][]string
	allowed       map[string]bool
	internal      []string
}

// New validates s and builds a Table from a copy of it.
// A module may appear in at most one import partition.
func New(s Spec) (*Table, error) {
	t := &Table{
		deniedCalls:   toSet(s.DeniedCalls),
		deniedImports: toSet(s.DeniedImports),
		conditional:   make(map[string][]string, len(s.ConditionalImports)),
		allowed:       toSet(s.AllowedImports),
	}

	for mod, paths := range s.ConditionalImports {
		mod = strings.TrimSpace(mod)
		if mod == "" {
			return nil, fmt.Errorf("conditional import with empty module name")
		}
		cp := make([]string, 0, len(paths))
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				cp = append(cp, p)
			}
		}
		sort.Strings(cp)
		t.conditional[mod] = cp
	}

	owner := make(map[string]string)
	claim := func(mod, partition string) error {
		if prev, ok := owner[mod]; ok {
			return fmt.Errorf("module %q listed in both %s and %s", mod, prev, partition)
		}
		owner[mod] = partition
		return nil
	}
	for _, mod := range sortedKeys(t.deniedImports) {
		if err := claim(mod, "denied_imports"); err != nil {
			return nil, err
		}
	}
	for _, mod := range sortedKeys(t.conditional) {
		if err := claim(mod, "conditional_imports"); err != nil {
			return nil, err
		}
	}
	for _, mod := range sortedKeys(t.allowed) {
		if err := claim(mod, "allowed_imports"); err != nil {
			return nil, err
		}
	}

	for _, p := range s.InternalPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			t.internal = append(t.internal, p)
		}
	}
	return t, nil
}

// MustNew is New for tables known to be valid at compile time.
func MustNew(s Spec) *Table {
	t, err := New(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the built-in policy.
func Default() *Table {
	return MustNew(DefaultSpec())
}

// DefaultSpec returns a fresh copy of the built-in partitions.
func DefaultSpec() Spec {
	return Spec{
		DeniedCalls: []string{
			"eval", "exec", "compile", "__import__", "execfile",
			"input", "open", "system", "popen",
		},
		DeniedImports: []string{
			"subprocess", "socket", "urllib", "pickle", "marshal", "ctypes", "cffi",
		},
		ConditionalImports: map[string][]string{
			"os":       {"getenv", "environ.get", "path"},
			"sys":      {"argv", "exit"},
			"requests": {},
		},
		AllowedImports: []string{
			"typing", "dataclasses", "enum", "abc", "collections", "datetime",
			"decimal", "fractions", "math", "statistics", "json", "re", "pathlib",
			"pydantic", "loguru", "sqlalchemy", "psycopg2", "langchain",
			"langchain_openai", "langgraph", "yaml", "httpx", "logging",
		},
		InternalPrefixes: []string{"meta_agent"},
	}
}

// Classify returns the partition of a top-level module name.
func (t *Table) Classify(module string) Class {
	switch {
	case t.deniedImports[module]:
		return Denied
	case t.hasConditional(module):
		return Conditional
	case t.allowed[module]:
		return Allowed
	case t.IsInternal(module):
		return Internal
	default:
		return Unknown
	}
}

func (t *Table) hasConditional(module string) bool {
	_, ok := t.conditional[module]
	return ok
}

// IsDeniedCall reports whether a resolved callee name is denied.
func (t *Table) IsDeniedCall(name string) bool {
	return t.deniedCalls[name]
}

// IsInternal reports whether module follows an internal naming convention:
// it equals a prefix, or continues it after a "_" or "." boundary.
func (t *Table) IsInternal(module string) bool {
	for _, p := range t.internal {
		rest, ok := strings.CutPrefix(module, p)
		if !ok {
			continue
		}
		if rest == "" || strings.HasSuffix(p, "_") || strings.HasSuffix(p, ".") ||
			rest[0] == '_' || rest[0] == '.' {
			return true
		}
	}
	return false
}

// AllowsAccess reports whether the dotted member path on a conditional
// module is permitted. A path is permitted when it equals an allow-list
// entry or lies beneath one ("path.join" under "path"). Modules that are not
// conditional, or whose allow-list is empty, permit everything.
func (t *Table) AllowsAccess(module, path string) bool {
	list, ok := t.conditional[module]
	if !ok || len(list) == 0 {
		return true
	}
	for _, entry := range list {
		if path == entry || strings.HasPrefix(path, entry+".") {
			return true
		}
	}
	return false
}

// AllowsMembersOf reports whether some allow-list entry of a conditional
// module lies beneath path ("environ.get" beneath "environ").
func (t *Table) AllowsMembersOf(module, path string) bool {
	for _, entry := range t.conditional[module] {
		if strings.HasPrefix(entry, path+".") {
			return true
		}
	}
	return false
}

// AllowedAccesses returns a copy of the allow-list for a conditional module.
func (t *Table) AllowedAccesses(module string) []string {
	return append([]string(nil), t.conditional[module]...)
}

// Spec returns a copy of the partitions, suitable for serialization.
func (t *Table) Spec() Spec {
	s := Spec{
		DeniedCalls:        sortedKeys(t.deniedCalls),
		DeniedImports:      sortedKeys(t.deniedImports),
		ConditionalImports: make(map[string][]string, len(t.conditional)),
		AllowedImports:     sortedKeys(t.allowed),
		InternalPrefixes:   append([]string(nil), t.internal...),
	}
	for mod, paths := range t.conditional {
		s.ConditionalImports[mod] = append([]string{}, paths...)
	}
	return s
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
