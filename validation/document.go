package validation

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed key/value specification.
type Document map[string]any

// ErrNotMapping is returned when a document's root is not a mapping.
var ErrNotMapping = errors.New("document root must be a mapping")

// ParseDocument decodes YAML (and therefore JSON) text into a Document.
func ParseDocument(text string) (Document, error) {
	var root any
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	m, ok := asMap(root)
	if !ok {
		return nil, ErrNotMapping
	}
	return Document(m), nil
}

// Lookup resolves a dotted path. Every intermediate value must be a mapping.
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// asMap normalizes the two mapping shapes yaml.v3 may produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
