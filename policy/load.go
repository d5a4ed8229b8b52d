package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a policy table from a YAML file. An empty path yields Default().
// Partitions absent from the file are empty, not defaulted.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a Table from YAML.
func Parse(data []byte) (*Table, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return New(s)
}

// Marshal encodes the table as YAML that Parse accepts.
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t.Spec())
}
