package ast

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ParserFactory creates a Parser for one language.
type ParserFactory func() Parser

// Registry maps language names and file extensions to parser factories.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ParserFactory // language → factory
	extMap    map[string]string        // extension → language
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ParserFactory),
		extMap:    make(map[string]string),
	}
}

// Register adds a factory for a language and its extensions.
// Extensions include the leading dot; the first registration of an extension wins.
func (r *Registry) Register(language string, extensions []string, factory ParserFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[language] = factory
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = language
		}
	}
}

// Language returns the language registered for a file extension.
func (r *Registry) Language(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.extMap[strings.ToLower(ext)]
	return name, ok
}

// NewParser instantiates the parser for a language.
func (r *Registry) NewParser(language string) (Parser, error) {
	r.mu.RLock()
	factory, ok := r.factories[language]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("parser not registered: %s", language)
	}
	return factory(), nil
}

// ParserFor instantiates the parser matching a file path's extension.
func (r *Registry) ParserFor(path string) (Parser, error) {
	ext := filepath.Ext(path)
	language, ok := r.Language(ext)
	if !ok {
		return nil, fmt.Errorf("no parser registered for extension: %q", ext)
	}
	return r.NewParser(language)
}

// Languages returns registered language names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the extensions mapped to a language, sorted.
func (r *Registry) Extensions(language string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exts []string
	for ext, name := range r.extMap {
		if name == language {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// DefaultRegistry is the process-wide registry.
// Language packages register themselves from init().
var DefaultRegistry = NewRegistry()
